package granola

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KarlRaf/granola-linear-integration/internal/logging"
)

// Reader loads meetings from the Granola cache file. It is a pure
// function of the file bytes and holds no state between reads.
type Reader struct {
	path   string
	logger *logging.Logger
	now    func() time.Time
}

// NewReader creates a reader for the cache file at path.
func NewReader(path string, logger *logging.Logger) *Reader {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reader{
		path:   path,
		logger: logger.Named("granola"),
		now:    time.Now,
	}
}

// Load reads the cache file and returns normalized meetings, newest
// first. A missing or unparseable file is not an error: it is logged and
// yields an empty result, because the file is owned by an external app
// and may be absent, truncated, or mid-write at any time.
func (r *Reader) Load(ctx context.Context) []Meeting {
	data, err := os.ReadFile(r.path)
	if err != nil {
		r.logger.Warn(ctx, "cache file unavailable",
			zap.String("path", r.path),
			zap.Error(err))
		return nil
	}

	return r.Parse(ctx, data)
}

// Parse normalizes raw cache bytes into meetings, newest first.
func (r *Reader) Parse(ctx context.Context, data []byte) []Meeting {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		r.logger.Warn(ctx, "cache file is not valid JSON",
			zap.String("path", r.path),
			zap.Error(err))
		return nil
	}

	candidates, transcripts := r.probe(ctx, doc)

	now := r.now()
	meetings := make([]Meeting, 0, len(candidates))
	for _, c := range candidates {
		m, ok := normalize(c.key, c.value, transcripts, now)
		if !ok {
			r.logger.Trace(ctx, "discarded cache record", zap.String("key", c.key))
			continue
		}
		meetings = append(meetings, m)
	}

	sortMeetings(meetings)

	r.logger.Debug(ctx, "loaded meetings from cache",
		zap.Int("candidates", len(candidates)),
		zap.Int("meetings", len(meetings)))

	return meetings
}

// candidate is one record found by a probe, with the container key it
// was indexed under (empty for list shapes).
type candidate struct {
	key   string
	value any
}

// probe locates candidate records in the document. The probes run in
// order of specificity; each may find nothing, in which case the next
// one is tried. Failure at every level yields an empty set, never an
// error.
//
//  1. Nested serialized sub-document under "cache" with
//     state.documents and state.transcripts mappings (primary shape).
//  2. Direct top-level keys: documents, docs, meetings.
//  3. The document itself is a list.
//  4. Generic keyed container under "data".
func (r *Reader) probe(ctx context.Context, doc any) ([]candidate, map[string]string) {
	root, isMap := doc.(map[string]any)

	if isMap {
		if inner, ok := root["cache"].(string); ok {
			if cands, transcripts, ok := r.probeNestedState(ctx, inner); ok {
				return cands, transcripts
			}
		}

		for _, key := range []string{"documents", "docs", "meetings"} {
			if cands, ok := candidatesFromContainer(root[key]); ok {
				return cands, nil
			}
		}
	}

	if list, ok := doc.([]any); ok {
		return candidatesFromList(list), nil
	}

	if isMap {
		if cands, ok := candidatesFromContainer(root["data"]); ok {
			return cands, nil
		}
	}

	r.logger.Debug(ctx, "no known cache shape matched")
	return nil, nil
}

// probeNestedState parses the serialized sub-document held in the
// top-level "cache" string and reads state.documents plus
// state.transcripts.
func (r *Reader) probeNestedState(ctx context.Context, inner string) ([]candidate, map[string]string, bool) {
	var nested map[string]any
	if err := json.Unmarshal([]byte(inner), &nested); err != nil {
		r.logger.Warn(ctx, "nested cache document is not valid JSON", zap.Error(err))
		return nil, nil, false
	}

	state, ok := nested["state"].(map[string]any)
	if !ok {
		return nil, nil, false
	}

	// An empty documents map counts as finding nothing, same as the
	// container probes: the next probe level gets its chance.
	docs, ok := state["documents"].(map[string]any)
	if !ok || len(docs) == 0 {
		return nil, nil, false
	}

	cands := candidatesFromMap(docs)
	transcripts := transcriptIndex(state["transcripts"])
	return cands, transcripts, true
}

// candidatesFromContainer accepts either a mapping or a list of records.
func candidatesFromContainer(v any) ([]candidate, bool) {
	switch c := v.(type) {
	case map[string]any:
		if len(c) == 0 {
			return nil, false
		}
		return candidatesFromMap(c), true
	case []any:
		if len(c) == 0 {
			return nil, false
		}
		return candidatesFromList(c), true
	}
	return nil, false
}

// candidatesFromMap keeps the container key as the fallback record id.
// Keys are walked in sorted order so output is deterministic.
func candidatesFromMap(m map[string]any) []candidate {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// map iteration order is random; candidates must be deterministic
	// for the stable date sort to mean anything
	sort.Strings(keys)

	cands := make([]candidate, 0, len(m))
	for _, k := range keys {
		cands = append(cands, candidate{key: k, value: m[k]})
	}
	return cands
}

func candidatesFromList(list []any) []candidate {
	cands := make([]candidate, 0, len(list))
	for _, el := range list {
		cands = append(cands, candidate{value: el})
	}
	return cands
}

// transcriptIndex flattens the external transcript mapping (meeting id →
// transcript) into plain text per meeting. Values may be strings or
// segment lists.
func transcriptIndex(v any) map[string]string {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(m))
	for id, raw := range m {
		switch t := raw.(type) {
		case string:
			if t != "" {
				out[id] = t
			}
		case []any:
			if joined := joinSegments(t); joined != "" {
				out[id] = joined
			}
		}
	}
	return out
}
