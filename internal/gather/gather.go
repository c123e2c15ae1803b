// Package gather pulls newline-delimited JSON from the locker and feeds each
// record to the index coordinator.
package gather

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
	"github.com/Aman-CERP/lockerindex/internal/mapping"
)

// DefaultTimeout bounds one service fetch.
const DefaultTimeout = 5 * time.Minute

// Indexer is the part of the coordinator the driver needs.
type Indexer interface {
	Recreate(ctx context.Context) error
	DeleteDocumentsByType(ctx context.Context, docType string) error
	IndexType(ctx context.Context, docType string, id any, value any) (time.Duration, error)
}

// Journal receives every parsed record when configured. Services with a
// Journal kind go through the people and status calls; the rest are
// journaled raw under the service name.
type Journal interface {
	AddRecord(ctx context.Context, collection, id string, ts int64, record map[string]any) error
	PutCurrent(ctx context.Context, collection, id string, record map[string]any) error
	CurrentIDs(ctx context.Context, collection string) ([]string, error)

	AddPerson(ctx context.Context, peopleType string, person map[string]any) error
	GetPersonFromCurrent(ctx context.Context, peopleType, id string) (map[string]any, bool, error)
	LogUpdatePerson(ctx context.Context, peopleType string, person map[string]any) error
	LogRemovePerson(ctx context.Context, peopleType, id string) error
	AddStatus(ctx context.Context, statusType string, status map[string]any) error
}

// Config configures a Gatherer.
type Config struct {
	// BaseURL is the locker root, e.g. http://localhost:8042.
	BaseURL string

	// Services are fetched in order. Empty selects DefaultServices.
	Services []Service

	// Timeout bounds each service fetch. Zero selects DefaultTimeout.
	Timeout time.Duration

	// Client is used for fetches. Nil selects a pooled client.
	Client *http.Client

	// Journal is optional.
	Journal Journal

	// OnService, if set, is called after each service with its 1-based
	// position and the number of services in the run.
	OnService func(done, total int, rep ServiceReport)
}

// ServiceReport summarizes one service's ingestion.
type ServiceReport struct {
	Service string `json:"service"`
	Type    string `json:"type"`
	Lines   int    `json:"lines"`
	Indexed int    `json:"indexed"`
	Empty   int    `json:"empty"`
	Failed  int    `json:"failed"`

	// Aborted is set when a malformed line stopped the stream early.
	Aborted bool `json:"aborted,omitempty"`

	// Error is set when the service could not be fetched at all.
	Error string `json:"error,omitempty"`

	// Removed counts people dropped from the journal because a complete
	// stream no longer listed them.
	Removed int `json:"removed,omitempty"`
}

// Report summarizes one Gather run.
type Report struct {
	Type     string          `json:"type,omitempty"`
	Services []ServiceReport `json:"services"`
	Duration time.Duration   `json:"duration"`
}

// Indexed returns the total number of documents written.
func (r Report) Indexed() int {
	n := 0
	for _, s := range r.Services {
		n += s.Indexed
	}
	return n
}

// Gatherer fetches locker services and indexes their records.
type Gatherer struct {
	cfg     Config
	indexer Indexer
	client  *http.Client
}

// New creates a Gatherer.
func New(cfg Config, indexer Indexer) *Gatherer {
	if len(cfg.Services) == 0 {
		cfg.Services = DefaultServices()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.Client
	if client == nil {
		// No client timeout: each fetch is bounded by its context.
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     10 * time.Second,
			},
		}
	}

	return &Gatherer{cfg: cfg, indexer: indexer, client: client}
}

// Gather resets the index and re-ingests. An empty docType recreates the
// whole index and fetches every service; otherwise only documents of that
// type are deleted and only the services indexing that type are fetched.
// Per-service failures are logged and reported; the returned error is set
// only when the reset fails or ctx is cancelled.
func (g *Gatherer) Gather(ctx context.Context, docType string) (Report, error) {
	start := time.Now()
	report := Report{Type: docType}

	services := g.servicesFor(docType)
	if docType != "" && len(services) == 0 {
		return report, ixerrors.UnknownType(docType)
	}

	if err := g.reset(ctx, docType); err != nil {
		return report, err
	}

	for i, svc := range services {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		rep := g.gatherService(ctx, svc)
		report.Services = append(report.Services, rep)
		if g.cfg.OnService != nil {
			g.cfg.OnService(i+1, len(services), rep)
		}
	}

	report.Duration = time.Since(start)
	slog.Info("gather_complete",
		slog.String("type", docType),
		slog.Int("services", len(report.Services)),
		slog.Int("indexed", report.Indexed()),
		slog.Duration("duration", report.Duration))
	return report, ctx.Err()
}

func (g *Gatherer) servicesFor(docType string) []Service {
	if docType == "" {
		return g.cfg.Services
	}
	var out []Service
	for _, svc := range g.cfg.Services {
		if svc.Type == docType {
			out = append(out, svc)
		}
	}
	return out
}

func (g *Gatherer) reset(ctx context.Context, docType string) error {
	if docType == "" {
		return g.indexer.Recreate(ctx)
	}
	return g.indexer.DeleteDocumentsByType(ctx, docType)
}

// ServiceURL returns the stream URL for a service.
func (g *Gatherer) ServiceURL(service string) string {
	return g.cfg.BaseURL + "/Me/" + url.PathEscape(service) + "/?all=true&stream=true"
}

func (g *Gatherer) gatherService(ctx context.Context, svc Service) ServiceReport {
	rep := ServiceReport{Service: svc.Name, Type: svc.Type}
	target := g.ServiceURL(svc.Name)
	slog.Info("gather_service_start", slog.String("service", svc.Name), slog.String("url", target))

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	body, err := g.open(ctx, target)
	if err != nil {
		logError("gather_service_unavailable", err, slog.String("service", svc.Name))
		rep.Error = err.Error()
		return rep
	}
	defer func() { _ = body.Close() }()

	var seen map[string]bool
	if svc.People() {
		seen = make(map[string]bool)
	}

	reader := bufio.NewReader(body)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			rep.Lines++
			if !g.processLine(ctx, svc, line, seen, &rep) {
				rep.Aborted = true
				break
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				logError("gather_stream_failed",
					ixerrors.Wrap(ixerrors.ErrCodeLockerUnavailable, readErr),
					slog.String("service", svc.Name))
				rep.Error = readErr.Error()
			}
			break
		}
	}

	// Only a complete stream proves someone is gone.
	if seen != nil && g.cfg.Journal != nil && !rep.Aborted && rep.Error == "" && ctx.Err() == nil {
		rep.Removed = g.removeUnseen(ctx, svc, seen)
	}

	slog.Info("gather_service_done",
		slog.String("service", svc.Name),
		slog.Int("lines", rep.Lines),
		slog.Int("indexed", rep.Indexed),
		slog.Int("empty", rep.Empty),
		slog.Int("failed", rep.Failed),
		slog.Int("removed", rep.Removed),
		slog.Bool("aborted", rep.Aborted))
	return rep
}

func (g *Gatherer) open(ctx context.Context, target string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, ixerrors.New(ixerrors.ErrCodeLockerUnavailable, "failed to connect to locker", err).
			WithDetail("url", target)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, ixerrors.New(ixerrors.ErrCodeLockerUnavailable,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), nil).
			WithDetail("url", target)
	}
	return resp.Body, nil
}

// processLine parses and indexes one line. It returns false when the line is
// malformed, which ends the service's stream.
func (g *Gatherer) processLine(ctx context.Context, svc Service, line []byte, seen map[string]bool, rep *ServiceReport) bool {
	record, err := decodeRecord(line)
	if err != nil {
		logError("gather_malformed_record",
			ixerrors.New(ixerrors.ErrCodeMalformedRecord, "malformed record, aborting stream", err),
			slog.String("service", svc.Name),
			slog.String("line", truncate(string(bytes.TrimSpace(line)), 200)))
		return false
	}

	id, ok := svc.DocumentID(record)
	if !ok {
		rep.Failed++
		logError("gather_index_failed", ixerrors.MissingID(), slog.String("service", svc.Name))
		return true
	}

	if g.cfg.Journal != nil {
		if err := g.journal(ctx, svc, id, record, seen); err != nil {
			logError("gather_journal_failed", err, slog.String("service", svc.Name), slog.String("id", id))
		}
	}

	d, err := g.indexer.IndexType(ctx, svc.Type, id, record)
	switch {
	case err != nil:
		rep.Failed++
		logError("gather_index_failed", err, slog.String("service", svc.Name), slog.String("id", id))
	case d == 0:
		rep.Empty++
	default:
		rep.Indexed++
	}
	return true
}

func (g *Gatherer) journal(ctx context.Context, svc Service, id string, record map[string]any, seen map[string]bool) error {
	j := g.cfg.Journal
	switch {
	case svc.Journal == "":
		if err := j.AddRecord(ctx, svc.Name, id, time.Now().UnixMilli(), record); err != nil {
			return err
		}
		return j.PutCurrent(ctx, svc.Name, id, record)
	case svc.People():
		return g.journalPerson(ctx, svc.Journal, record, seen)
	default:
		return j.AddStatus(ctx, svc.Journal, record)
	}
}

// journalPerson adds a new person, logs a changed profile as an update and
// leaves an unchanged one alone.
func (g *Gatherer) journalPerson(ctx context.Context, peopleType string, person map[string]any, seen map[string]bool) error {
	key, _ := mapping.Token(person["id"])
	seen[key] = true

	j := g.cfg.Journal
	current, ok, err := j.GetPersonFromCurrent(ctx, peopleType, key)
	if err != nil {
		return err
	}
	if !ok {
		return j.AddPerson(ctx, peopleType, person)
	}
	if sameRecord(current, person) {
		return nil
	}
	return j.LogUpdatePerson(ctx, peopleType, person)
}

// removeUnseen logs the removal of every current person the stream did
// not list and returns how many were removed.
func (g *Gatherer) removeUnseen(ctx context.Context, svc Service, seen map[string]bool) int {
	j := g.cfg.Journal
	ids, err := j.CurrentIDs(ctx, svc.Journal)
	if err != nil {
		logError("gather_journal_failed", err, slog.String("service", svc.Name))
		return 0
	}

	removed := 0
	for _, id := range ids {
		if seen[id] {
			continue
		}
		if err := j.LogRemovePerson(ctx, svc.Journal, id); err != nil {
			logError("gather_journal_failed", err, slog.String("service", svc.Name), slog.String("id", id))
			continue
		}
		removed++
		slog.Info("gather_person_removed",
			slog.String("service", svc.Name),
			slog.String("people", svc.Journal),
			slog.String("id", id))
	}
	return removed
}

// sameRecord compares a freshly decoded record with a stored one. The
// fresh record goes through the same JSON round trip the stored one did.
func sameRecord(stored, fresh map[string]any) bool {
	data, err := json.Marshal(fresh)
	if err != nil {
		return false
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return false
	}
	return reflect.DeepEqual(stored, normalized)
}

// decodeRecord parses one JSON object, keeping numbers exact.
func decodeRecord(line []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("unexpected data after record")
	}
	if record == nil {
		return nil, fmt.Errorf("record is not an object")
	}
	return record, nil
}

func logError(event string, err error, attrs ...slog.Attr) {
	attrs = append(attrs, ixerrors.LogAttrs(err)...)
	slog.LogAttrs(context.Background(), slog.LevelError, event, attrs...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
