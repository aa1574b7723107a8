// Copyright 2026 AskAnna Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/askanna-io/runcore/internal/core/apierror"
	"github.com/askanna-io/runcore/internal/core/model"
	"github.com/askanna-io/runcore/internal/core/repo"
	"github.com/askanna-io/runcore/internal/pkg/blob"
	"github.com/askanna-io/runcore/pkg/cache"
	"github.com/askanna-io/runcore/pkg/log"
	"github.com/askanna-io/runcore/pkg/metrics"
)

// Row kinds handled by the ingestion pipeline.
const (
	KindMetric   = "metric"
	KindVariable = "variable"
)

// secretMarkers trigger masking of variable values.
var secretMarkers = []string{"KEY", "TOKEN", "SECRET", "PASSWORD"}

const (
	finalizeLockTTL  = 30 * time.Second
	finalizeAttempts = 3
)

// IngestRow is one observation in an append batch.
type IngestRow struct {
	Object    model.TrackedObject  `json:"object"`
	Label     []model.TrackedLabel `json:"label,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
}

// IngestService appends metric and variable rows idempotently and
// materializes the per-run meta summaries.
type IngestService struct {
	trackingRepo repo.ITrackingRepository
	runRepo      repo.IRunRepository
	store        blob.Store
	cache        cache.ICache
}

func NewIngestService(
	trackingRepo repo.ITrackingRepository,
	runRepo repo.IRunRepository,
	store blob.Store,
	c cache.ICache,
) *IngestService {
	return &IngestService{
		trackingRepo: trackingRepo,
		runRepo:      runRepo,
		store:        store,
		cache:        c,
	}
}

// NeedsMask reports whether a variable name requires value masking.
func NeedsMask(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

// MaskLabels appends the is_masked tag label when absent.
func MaskLabels(labels []model.TrackedLabel) []model.TrackedLabel {
	for _, label := range labels {
		if label.Name == "is_masked" {
			return labels
		}
	}
	return append(labels, model.TrackedLabel{Name: "is_masked", Type: "tag"})
}

// rowHash digests the (run, object, label, created_at) conflict key.
func rowHash(kind, runSuuid string, object model.TrackedObject, labels []model.TrackedLabel, createdAt time.Time) (string, error) {
	objectJSON, err := json.Marshal(object)
	if err != nil {
		return "", err
	}
	labelJSON, err := json.Marshal(labels)
	if err != nil {
		return "", err
	}
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%d", kind, runSuuid, objectJSON, labelJSON, createdAt.UTC().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Append persists a batch of rows for an active run. A duplicate row is a
// no-op; replaying a batch changes nothing.
func (is *IngestService) Append(ctx context.Context, kind, runSuuid string, rows []IngestRow) error {
	run, err := is.runRepo.Get(ctx, runSuuid)
	if err != nil {
		return apierror.E(apierror.NotFound, "run %s not found", runSuuid)
	}
	if run.IsTerminal() {
		return apierror.E(apierror.RunNotActive, "run %s is %s", runSuuid, run.Status)
	}

	for _, row := range rows {
		object := row.Object
		labels := row.Label
		masked := false
		if kind == KindVariable && NeedsMask(object.Name) {
			object.Value = model.MaskedSentinel
			labels = MaskLabels(labels)
			masked = true
		}
		createdAt := row.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		hash, err := rowHash(kind, runSuuid, object, labels, createdAt)
		if err != nil {
			return apierror.Wrap(apierror.InvalidInput, err, "encode row")
		}
		objectJSON, _ := json.Marshal(object)
		labelJSON, _ := json.Marshal(labels)

		inserted := false
		switch kind {
		case KindMetric:
			inserted, err = is.trackingRepo.InsertMetricRow(ctx, &model.MetricRow{
				RunId:     runSuuid,
				RowHash:   hash,
				Metric:    objectJSON,
				Label:     labelJSON,
				IsMasked:  masked,
				CreatedAt: createdAt.UTC(),
			})
		case KindVariable:
			inserted, err = is.trackingRepo.InsertVariableRow(ctx, &model.VariableRow{
				RunId:     runSuuid,
				RowHash:   hash,
				Variable:  objectJSON,
				Label:     labelJSON,
				IsMasked:  masked,
				CreatedAt: createdAt.UTC(),
			})
		default:
			return apierror.E(apierror.InvalidInput, "unknown row kind %q", kind)
		}
		if err != nil {
			return apierror.Wrap(apierror.Internal, err, "store row")
		}
		if inserted {
			metrics.IngestedRows.WithLabelValues(kind).Inc()
		}
	}
	return nil
}

func (is *IngestService) ListMetricRows(ctx context.Context, query *repo.RowQuery) ([]*model.MetricRow, error) {
	return is.trackingRepo.ListMetricRows(ctx, query)
}

func (is *IngestService) ListVariableRows(ctx context.Context, query *repo.RowQuery) ([]*model.VariableRow, error) {
	return is.trackingRepo.ListVariableRows(ctx, query)
}

// Finalize materializes the rows of one kind into a blob file and the meta
// record, fenced by a per-run lock and retried a bounded number of times.
func (is *IngestService) Finalize(ctx context.Context, kind, runSuuid string) error {
	lockName := fmt.Sprintf("%s:update_file_and_meta:%s", kind, runSuuid)

	var lastErr error
	for attempt := 1; attempt <= finalizeAttempts; attempt++ {
		if err := is.cache.TryLock(ctx, lockName, finalizeLockTTL); err != nil {
			if errors.Is(err, cache.ErrNotLocked) {
				lastErr = err
				time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
				continue
			}
			return apierror.Wrap(apierror.Internal, err, "acquire finalize lock")
		}

		err := is.materialize(ctx, kind, runSuuid)
		if unlockErr := is.cache.Unlock(context.WithoutCancel(ctx), lockName); unlockErr != nil {
			log.Warnw("failed to release finalize lock", "lock", lockName, "error", unlockErr)
		}
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warnw("finalize attempt failed", "kind", kind, "run", runSuuid, "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	return apierror.Wrap(apierror.Internal, lastErr, "finalize "+kind+" rows")
}

func (is *IngestService) materialize(ctx context.Context, kind, runSuuid string) error {
	switch kind {
	case KindMetric:
		rows, err := is.trackingRepo.ListMetricRows(ctx, &repo.RowQuery{RunId: runSuuid})
		if err != nil {
			return err
		}
		generic := make([]trackedRow, len(rows))
		for i, row := range rows {
			generic[i] = trackedRow{Object: json.RawMessage(row.Metric), Label: json.RawMessage(row.Label), CreatedAt: row.CreatedAt}
		}
		size, names, labelNames, err := is.writeRowsFile(ctx, blob.RunDir(runSuuid)+"/metrics.json", generic)
		if err != nil {
			return err
		}
		return is.trackingRepo.UpsertMetricMeta(ctx, &model.MetricMeta{
			RunId:       runSuuid,
			Count:       len(rows),
			Size:        size,
			MetricNames: names,
			LabelNames:  labelNames,
			BlobPath:    blob.RunDir(runSuuid) + "/metrics.json",
		})
	case KindVariable:
		rows, err := is.trackingRepo.ListVariableRows(ctx, &repo.RowQuery{RunId: runSuuid})
		if err != nil {
			return err
		}
		generic := make([]trackedRow, len(rows))
		for i, row := range rows {
			generic[i] = trackedRow{Object: json.RawMessage(row.Variable), Label: json.RawMessage(row.Label), CreatedAt: row.CreatedAt}
		}
		size, names, labelNames, err := is.writeRowsFile(ctx, blob.RunDir(runSuuid)+"/variables.json", generic)
		if err != nil {
			return err
		}
		return is.trackingRepo.UpsertVariableMeta(ctx, &model.VariableMeta{
			RunId:         runSuuid,
			Count:         len(rows),
			Size:          size,
			VariableNames: names,
			LabelNames:    labelNames,
			BlobPath:      blob.RunDir(runSuuid) + "/variables.json",
		})
	}
	return apierror.E(apierror.InvalidInput, "unknown row kind %q", kind)
}

type trackedRow struct {
	Object    json.RawMessage `json:"object"`
	Label     json.RawMessage `json:"label"`
	CreatedAt time.Time       `json:"created_at"`
}

func (is *IngestService) writeRowsFile(ctx context.Context, key string, rows []trackedRow) (int64, []byte, []byte, error) {
	body, err := json.Marshal(rows)
	if err != nil {
		return 0, nil, nil, err
	}
	size, err := is.store.Put(ctx, key, bytes.NewReader(body))
	if err != nil {
		return 0, nil, nil, err
	}

	names, labelNames, err := summarizeRows(rows)
	if err != nil {
		return 0, nil, nil, err
	}
	return size, names, labelNames, nil
}

// summarizeRows computes the unique (name, type) pairs with counts and the
// distinct label names. Integer and float observations of one name merge
// to float; any other type mismatch merges to mixed.
func summarizeRows(rows []trackedRow) ([]byte, []byte, error) {
	type agg struct {
		typ   string
		count int
		order int
	}
	byName := make(map[string]*agg)
	labelSet := make(map[string]int)

	for _, row := range rows {
		var object model.TrackedObject
		if err := json.Unmarshal(row.Object, &object); err != nil {
			return nil, nil, err
		}

		if a, ok := byName[object.Name]; ok {
			a.count++
			a.typ = MergeTypes(a.typ, object.Type)
		} else {
			byName[object.Name] = &agg{typ: object.Type, count: 1, order: len(byName)}
		}

		if len(row.Label) > 0 {
			var labels []model.TrackedLabel
			if err := json.Unmarshal(row.Label, &labels); err != nil {
				return nil, nil, err
			}
			for _, label := range labels {
				if _, ok := labelSet[label.Name]; !ok {
					labelSet[label.Name] = len(labelSet)
				}
			}
		}
	}

	uniqueNames := make([]model.UniqueName, 0, len(byName))
	for name, a := range byName {
		uniqueNames = append(uniqueNames, model.UniqueName{Name: name, Type: a.typ, Count: a.count})
	}
	sort.Slice(uniqueNames, func(i, j int) bool {
		return byName[uniqueNames[i].Name].order < byName[uniqueNames[j].Name].order
	})

	labelNames := make([]string, len(labelSet))
	for name, idx := range labelSet {
		labelNames[idx] = name
	}

	namesJSON, err := json.Marshal(uniqueNames)
	if err != nil {
		return nil, nil, err
	}
	labelsJSON, err := json.Marshal(labelNames)
	if err != nil {
		return nil, nil, err
	}
	return namesJSON, labelsJSON, nil
}

// MergeTypes folds the type of a new observation into the accumulated type
// of a name.
func MergeTypes(accumulated, next string) string {
	if accumulated == next {
		return accumulated
	}
	if (accumulated == "integer" && next == "float") || (accumulated == "float" && next == "integer") {
		return "float"
	}
	if accumulated == "mixed" {
		return "mixed"
	}
	return "mixed"
}

// Deduplicate collapses rows of a finished run that share object, label,
// masking and timestamp while adjacent in time order.
func (is *IngestService) Deduplicate(ctx context.Context, kind, runSuuid string) error {
	switch kind {
	case KindMetric:
		rows, err := is.trackingRepo.ListMetricRows(ctx, &repo.RowQuery{RunId: runSuuid})
		if err != nil {
			return err
		}
		var drop []uint
		for i := 1; i < len(rows); i++ {
			prev, cur := rows[i-1], rows[i]
			if bytes.Equal(prev.Metric, cur.Metric) && bytes.Equal(prev.Label, cur.Label) &&
				prev.IsMasked == cur.IsMasked && prev.CreatedAt.Equal(cur.CreatedAt) {
				drop = append(drop, cur.Id)
			}
		}
		return is.trackingRepo.DeleteMetricRows(ctx, drop)
	case KindVariable:
		rows, err := is.trackingRepo.ListVariableRows(ctx, &repo.RowQuery{RunId: runSuuid})
		if err != nil {
			return err
		}
		var drop []uint
		for i := 1; i < len(rows); i++ {
			prev, cur := rows[i-1], rows[i]
			if bytes.Equal(prev.Variable, cur.Variable) && bytes.Equal(prev.Label, cur.Label) &&
				prev.IsMasked == cur.IsMasked && prev.CreatedAt.Equal(cur.CreatedAt) {
				drop = append(drop, cur.Id)
			}
		}
		return is.trackingRepo.DeleteVariableRows(ctx, drop)
	}
	return apierror.E(apierror.InvalidInput, "unknown row kind %q", kind)
}
