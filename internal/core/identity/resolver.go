package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/markdave123-py/vectorsync/internal/core"
	"github.com/markdave123-py/vectorsync/internal/models"
)

// Mode decides what happens when a token cannot be mapped to a canonical id.
type Mode int

const (
	// Strict fails with UnresolvedIdentity.
	Strict Mode = iota
	// Lenient uses the token itself as a pseudo id. The resulting collection
	// is not canonical and is never migrated automatically.
	Lenient
)

func (m Mode) String() string {
	if m == Lenient {
		return "lenient"
	}
	return "strict"
}

// Via records which step of the cascade produced a resolution.
type Via string

const (
	ViaNumeric  Via = "numeric"
	ViaMapping  Via = "mapping"
	ViaMetadata Via = "metadata"
	ViaText     Via = "text"
	ViaPseudo   Via = "pseudo"
)

type Resolution struct {
	SourceID       int64  `json:"sourceId"`
	CollectionName string `json:"collectionName"`
	Canonical      bool   `json:"canonical"`
	Via            Via    `json:"via"`
	Token          string `json:"token,omitempty"`
	MigratedFrom   string `json:"migratedFrom,omitempty"`
}

// Store is the slice of the record store the resolver needs.
type Store interface {
	core.SourceReader
	PutTokenMapping(ctx context.Context, m models.TokenMapping) error
	MergeMetadata(ctx context.Context, id int64, patch map[string]any) error
}

// Migrator copies a legacy token-named collection into the canonical one.
type Migrator interface {
	MigrateLegacy(ctx context.Context, legacy []string, canonical string) (from string, copied int, err error)
}

// Resolver maps raw source references to canonical ids and collection names.
type Resolver struct {
	store       Store
	migrator    Migrator
	autoMigrate bool
	searchLimit int
	group       singleflight.Group
	logger      *slog.Logger
}

type Option func(*Resolver)

// WithMigrator enables opportunistic legacy collection migration.
func WithMigrator(m Migrator) Option {
	return func(r *Resolver) {
		r.migrator = m
		r.autoMigrate = m != nil
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

func NewResolver(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		searchLimit: 20,
		logger:      slog.Default().With("component", "identity"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// canonicalID extracts a numeric id from a bare number or a prefixed collection name.
func canonicalID(ref string) (int64, bool) {
	for _, prefix := range []string{models.CollectionPrefix, "data_source_"} {
		ref = strings.TrimPrefix(ref, prefix)
	}
	n, err := strconv.ParseInt(ref, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// IsCanonicalRef reports whether ref names a source id directly, as a bare
// number or a prefixed collection name.
func IsCanonicalRef(ref string) bool {
	_, ok := canonicalID(strings.TrimSpace(ref))
	return ok
}

// Resolve maps rawRef to a canonical source id and collection name. Concurrent
// calls for the same reference share one lookup.
func (r *Resolver) Resolve(ctx context.Context, rawRef string, mode Mode) (*Resolution, error) {
	ref := strings.TrimSpace(rawRef)
	if ref == "" {
		return nil, core.E(core.KindUnresolvedIdentity, "resolve", fmt.Errorf("empty source reference"))
	}
	if id, ok := canonicalID(ref); ok {
		return &Resolution{SourceID: id, CollectionName: models.CollectionName(id), Canonical: true, Via: ViaNumeric}, nil
	}

	v, err, _ := r.group.Do(mode.String()+"|"+ref, func() (any, error) {
		return r.resolveToken(ctx, ref, mode)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Resolution)
	return &res, nil
}

func (r *Resolver) resolveToken(ctx context.Context, token string, mode Mode) (*Resolution, error) {
	m, err := r.store.GetTokenMapping(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token mapping lookup: %w", err)
	}
	if m != nil {
		return r.canonical(ctx, m.SourceID, token, ViaMapping), nil
	}

	src, err := r.store.FindSourceByMetadataToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("metadata lookup: %w", err)
	}
	if src != nil {
		return r.remember(ctx, src.ID, token, ViaMetadata), nil
	}

	candidates, err := r.store.SearchSourcesByText(ctx, token, r.searchLimit)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	if len(candidates) > 0 {
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID > candidates[j].ID })
		if len(candidates) > 1 {
			r.logger.Warn("token matched several sources, using the newest",
				"token", token, "source_id", candidates[0].ID, "matches", len(candidates))
		}
		return r.remember(ctx, candidates[0].ID, token, ViaText), nil
	}

	if mode == Lenient {
		r.logger.Warn("token unresolved, using it as a pseudo id", "token", token)
		return &Resolution{CollectionName: models.CollectionPrefix + token, Via: ViaPseudo, Token: token}, nil
	}
	return nil, core.E(core.KindUnresolvedIdentity, "resolve", fmt.Errorf("no source matches token %q", token))
}

// remember persists a freshly discovered mapping. A failed write only costs
// the fast path next time, so it is logged and the resolution still stands.
func (r *Resolver) remember(ctx context.Context, id int64, token string, via Via) *Resolution {
	err := r.store.PutTokenMapping(ctx, models.TokenMapping{Token: token, SourceID: id, CreatedAt: time.Now().UTC()})
	if err != nil {
		r.logger.Error("persist token mapping", "token", token, "source_id", id, "err", err)
	}
	return r.canonical(ctx, id, token, via)
}

func (r *Resolver) canonical(ctx context.Context, id int64, token string, via Via) *Resolution {
	res := &Resolution{SourceID: id, CollectionName: models.CollectionName(id), Canonical: true, Via: via, Token: token}
	if r.autoMigrate {
		res.MigratedFrom = r.migrate(ctx, id, token, res.CollectionName)
	}
	return res
}

// LegacyNames lists the collection names older code paths derived from a token.
func LegacyNames(token string) []string {
	return []string{models.CollectionPrefix + token, "data_source_" + token, token}
}

// migrate is best effort: failures are logged and leave both collections as they are.
func (r *Resolver) migrate(ctx context.Context, id int64, token, canonical string) string {
	from, copied, err := r.migrator.MigrateLegacy(ctx, LegacyNames(token), canonical)
	if err != nil {
		r.logger.Error("legacy collection migration failed", "token", token, "collection", canonical, "err", err)
		return ""
	}
	if from == "" {
		return ""
	}
	patch := map[string]any{
		"staleCollection": from,
		"migratedAt":      time.Now().UTC().Format(time.RFC3339),
		"migratedPoints":  copied,
	}
	if err := r.store.MergeMetadata(ctx, id, patch); err != nil {
		r.logger.Error("record migration on source", "source_id", id, "err", err)
	}
	return from
}
