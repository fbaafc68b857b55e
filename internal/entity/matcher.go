package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/recall-backend/internal/data/repos"
	ent "github.com/yungbote/recall-backend/internal/domain/entities"
	"github.com/yungbote/recall-backend/internal/normalization"
	"github.com/yungbote/recall-backend/internal/pkg/dbctx"
	"github.com/yungbote/recall-backend/internal/platform/envutil"
	"github.com/yungbote/recall-backend/internal/platform/logger"
)

// Matcher finds known entities mentioned in content text by whole-word
// lookup against an in-memory index of canonical names and aliases. The
// index is process-wide: it is built lazily on first use, rebuilt only on
// demand, and entity-table writes do not invalidate it.
type Matcher interface {
	Match(dbc dbctx.Context, text string) ([]Detection, error)
	Rebuild(dbc dbctx.Context) error
	Ensure(dbc dbctx.Context) error
	EntityByAlias(name string) (uuid.UUID, bool)
}

type indexEntry struct {
	entityID   uuid.UUID
	name       string
	entityType string
	alias      bool
}

type matcher struct {
	log      *logger.Logger
	entities repos.EntityRepo
	fuzzy    int

	mu       sync.RWMutex
	built    bool
	entries  map[string][]indexEntry
	byFirst  map[byte][]string
	maxWords int
}

// fuzzyMinLen gates fuzzy lookup to longer names. A distance-1 match on a
// four letter name ("rust" vs "trust") is almost always noise.
const fuzzyMinLen = 6

func NewMatcher(log *logger.Logger, entities repos.EntityRepo) (Matcher, error) {
	if log == nil {
		return nil, fmt.Errorf("log cannot be nil")
	}
	if entities == nil {
		return nil, fmt.Errorf("entities cannot be nil")
	}
	return &matcher{
		log:      log.With("service", "EntityMatcher"),
		entities: entities,
		fuzzy:    envutil.Int("ENTITY_MATCH_FUZZY_DISTANCE", 1),
		entries:  map[string][]indexEntry{},
		byFirst:  map[byte][]string{},
	}, nil
}

func (m *matcher) Ensure(dbc dbctx.Context) error {
	m.mu.RLock()
	built := m.built
	m.mu.RUnlock()
	if built {
		return nil
	}
	return m.Rebuild(dbc)
}

// Rebuild replaces the index from the entity table.
func (m *matcher) Rebuild(dbc dbctx.Context) error {
	const page = 200

	entries := map[string][]indexEntry{}
	byFirst := map[byte][]string{}
	maxWords := 1
	indexed := 0

	add := func(raw string, e indexEntry) {
		key := normalization.Name(raw)
		if key == "" {
			return
		}
		for _, existing := range entries[key] {
			if existing.entityID == e.entityID && existing.alias == e.alias {
				return
			}
		}
		if len(entries[key]) == 0 {
			byFirst[key[0]] = append(byFirst[key[0]], key)
		}
		entries[key] = append(entries[key], e)
		if w := len(strings.Fields(raw)); w > maxWords {
			maxWords = w
		}
		indexed++
	}

	offset := 0
	for {
		rows, _, err := m.entities.List(dbc, repos.EntityFilter{Limit: page, Offset: offset})
		if err != nil {
			return fmt.Errorf("list entities: %w", err)
		}
		for _, row := range rows {
			if row == nil || row.ID == uuid.Nil {
				continue
			}
			add(row.Name, indexEntry{entityID: row.ID, name: row.Name, entityType: row.EntityType})
			for _, alias := range metadataAliases(row) {
				add(alias, indexEntry{entityID: row.ID, name: row.Name, entityType: row.EntityType, alias: true})
			}
		}
		if len(rows) < page {
			break
		}
		offset += page
	}

	if maxWords > 5 {
		maxWords = 5
	}

	m.mu.Lock()
	m.entries = entries
	m.byFirst = byFirst
	m.maxWords = maxWords
	m.built = true
	m.mu.Unlock()

	m.log.Info("keyword index rebuilt", "terms", len(entries), "indexed", indexed)
	return nil
}

func (m *matcher) EntityByAlias(name string) (uuid.UUID, bool) {
	key := normalization.Name(name)
	if key == "" {
		return uuid.Nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries[key] {
		if e.alias {
			return e.entityID, true
		}
	}
	return uuid.Nil, false
}

var wordRe = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9+#._-]*`)

func (m *matcher) Match(dbc dbctx.Context, text string) ([]Detection, error) {
	if err := m.Ensure(dbc); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.entries) == 0 {
		return nil, nil
	}

	tokens := wordRe.FindAllString(text, -1)
	for i, t := range tokens {
		tokens[i] = strings.TrimRight(t, ".")
	}

	// best hit per entity id; canonical beats alias
	best := map[uuid.UUID]indexEntry{}
	record := func(hits []indexEntry) {
		for _, h := range hits {
			cur, ok := best[h.entityID]
			if !ok || (cur.alias && !h.alias) {
				best[h.entityID] = h
			}
		}
	}

	for n := 1; n <= m.maxWords; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			gram := normalization.Name(strings.Join(tokens[i:i+n], " "))
			if gram == "" {
				continue
			}
			if hits, ok := m.entries[gram]; ok {
				record(hits)
				continue
			}
			if m.fuzzy > 0 && len(gram) >= fuzzyMinLen {
				record(m.fuzzyLookup(gram))
			}
		}
	}

	out := make([]Detection, 0, len(best))
	for _, h := range best {
		det := Detection{
			Name:       h.name,
			EntityType: h.entityType,
			Confidence: 0.9,
			Source:     ent.SourceAIExtracted,
			MatchType:  MatchKeyword,
		}
		if h.alias {
			det.Confidence = 0.85
			det.MatchType = MatchAlias
		}
		out = append(out, det)
	}
	return out, nil
}

// fuzzyLookup scans index keys sharing the gram's first byte and a similar
// length. Callers hold the read lock.
func (m *matcher) fuzzyLookup(gram string) []indexEntry {
	for _, key := range m.byFirst[gram[0]] {
		if len(key) < fuzzyMinLen {
			continue
		}
		diff := len(key) - len(gram)
		if diff > m.fuzzy || diff < -m.fuzzy {
			continue
		}
		if normalization.WithinDistance(gram, key, m.fuzzy) {
			return m.entries[key]
		}
	}
	return nil
}

func metadataAliases(row *ent.Entity) []string {
	if row == nil || len(row.Metadata) == 0 {
		return nil
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(row.Metadata, &meta); err != nil {
		return nil
	}
	rawAliases, ok := meta[ent.MetaAliases]
	if !ok {
		return nil
	}
	var aliases []string
	if err := json.Unmarshal(rawAliases, &aliases); err != nil {
		return nil
	}
	out := aliases[:0]
	for _, a := range aliases {
		if strings.TrimSpace(a) != "" {
			out = append(out, a)
		}
	}
	return out
}
