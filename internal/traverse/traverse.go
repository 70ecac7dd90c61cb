// Package traverse answers transitive graph queries: who calls a symbol,
// and what a symbol depends on. Traversal is breadth-first, bounded by
// depth and result limits, and safe on cyclic graphs.
package traverse

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"codegraph/internal/cache"
	"codegraph/internal/config"
	cgerrors "codegraph/internal/errors"
	"codegraph/internal/logging"
	"codegraph/internal/storage"
)

// Request describes one traversal query. Zero values for MaxDepth and Limit
// fall back to the configured defaults.
type Request struct {
	RepoID    int64
	SymbolID  int64
	Direction storage.TraversalDirection
	Kinds     []string
	MaxDepth  int
	Limit     int
}

// Edge is a graph edge annotated with the depth at which traversal
// discovered it.
type Edge struct {
	storage.GraphEdge
	Depth int `json:"depth"`
}

// Result is the ordered outcome of one traversal.
type Result struct {
	Seed      *storage.Symbol `json:"seed"`
	Edges     []Edge          `json:"edges"`
	Truncated bool            `json:"truncated,omitempty"`
	FromCache bool            `json:"-"`
}

// Engine runs traversal queries against the store, backed by the shared
// result cache.
type Engine struct {
	db     *storage.DB
	cache  *cache.Cache
	cfg    config.TraversalConfig
	logger *logging.Logger
}

func NewEngine(db *storage.DB, c *cache.Cache, cfg config.TraversalConfig, logger *logging.Logger) *Engine {
	return &Engine{db: db, cache: c, cfg: cfg, logger: logger.Named("traverse")}
}

// Traverse walks the resolved dependency graph breadth-first from the seed
// symbol. Cycles are broken per path, so a node reached along two distinct
// paths is reported twice (diamond reconvergence) while a back-edge into
// the current path terminates that branch. Results are ordered shallowest
// first, most recent edge first within a depth, and truncated to the limit.
func (e *Engine) Traverse(ctx context.Context, req Request) (*Result, error) {
	if err := e.normalize(&req); err != nil {
		return nil, err
	}

	seed, err := e.db.GetSymbolByID(req.SymbolID)
	if err != nil {
		return nil, err
	}
	if seed == nil {
		return nil, cgerrors.New(cgerrors.NotFound,
			fmt.Sprintf("symbol %d not found", req.SymbolID), nil)
	}

	key := e.cacheKey(req)
	if e.cache != nil {
		if data, ok := e.cache.Get(key); ok {
			var cached Result
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.FromCache = true
				return &cached, nil
			}
		}
	}

	if e.cfg.QueryTimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.QueryTimeout())
		defer cancel()
	}

	edges, truncated, err := e.walk(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &Result{Seed: seed, Edges: edges, Truncated: truncated}
	if e.cache != nil {
		if data, err := json.Marshal(result); err == nil {
			e.cache.Set(key, data)
		}
	}
	return result, nil
}

func (e *Engine) normalize(req *Request) error {
	switch req.Direction {
	case storage.DirectionCallers, storage.DirectionDependencies:
	default:
		return cgerrors.New(cgerrors.Validation,
			fmt.Sprintf("unknown traversal direction %q", req.Direction), nil)
	}
	if req.MaxDepth <= 0 || req.MaxDepth > e.cfg.MaxDepth {
		req.MaxDepth = e.cfg.MaxDepth
	}
	if req.Limit <= 0 || req.Limit > e.cfg.ResultLimit {
		req.Limit = e.cfg.ResultLimit
	}
	sort.Strings(req.Kinds)
	return nil
}

func (e *Engine) cacheKey(req Request) string {
	return cache.Key(fmt.Sprintf("traverse:repo:%d", req.RepoID), map[string]interface{}{
		"symbol":    req.SymbolID,
		"direction": string(req.Direction),
		"kinds":     req.Kinds,
		"depth":     req.MaxDepth,
		"limit":     req.Limit,
	})
}

// walk is the breadth-first core. The frontier maps each node reachable at
// the current depth to the path that first reached it; path membership is
// the cycle check. One frontier entry per node per depth keeps the frontier
// bounded by the graph size, and the depth bound guarantees termination
// even with duplicate reporting on reconvergent paths.
func (e *Engine) walk(ctx context.Context, req Request) ([]Edge, bool, error) {
	frontier := map[int64][]int64{req.SymbolID: {req.SymbolID}}

	var out []Edge
	for depth := 1; depth <= req.MaxDepth && len(frontier) > 0; depth++ {
		anchors := make([]int64, 0, len(frontier))
		for id := range frontier {
			anchors = append(anchors, id)
		}
		sort.Slice(anchors, func(i, j int) bool { return anchors[i] < anchors[j] })

		edges, err := e.db.ListEdges(ctx, anchors, req.Direction, req.Kinds)
		if err != nil {
			return nil, false, err
		}

		next := make(map[int64][]int64)
		for _, edge := range edges {
			anchor, node := edge.ToSymbolID, edge.FromSymbolID
			if req.Direction == storage.DirectionDependencies {
				anchor, node = edge.FromSymbolID, edge.ToSymbolID
			}

			path := frontier[anchor]
			if containsID(path, node) {
				// Back-edge into the current path: report it once,
				// never expand it.
				out = append(out, Edge{GraphEdge: edge, Depth: depth})
				continue
			}

			out = append(out, Edge{GraphEdge: edge, Depth: depth})
			if _, seen := next[node]; !seen {
				extended := make([]int64, len(path), len(path)+1)
				copy(extended, path)
				next[node] = append(extended, node)
			}
		}
		frontier = next
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].ID > out[j].ID
	})

	if len(out) > req.Limit {
		return out[:req.Limit], true, nil
	}
	return out, false, nil
}

func containsID(path []int64, id int64) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

// CallerGroup aggregates direct callers that invoke the seed with the same
// argument shape.
type CallerGroup struct {
	ParameterContext string `json:"parameterContext"`
	Count            int    `json:"count"`
	Callers          []Edge `json:"callers"`
}

// GroupCallers fetches the direct callers of a symbol and groups them by
// parameter context, most common shape first. Callers with no recorded
// arguments group under the empty context.
func (e *Engine) GroupCallers(ctx context.Context, repoID, symbolID int64) ([]CallerGroup, error) {
	result, err := e.Traverse(ctx, Request{
		RepoID:    repoID,
		SymbolID:  symbolID,
		Direction: storage.DirectionCallers,
		MaxDepth:  1,
	})
	if err != nil {
		return nil, err
	}

	byContext := make(map[string]*CallerGroup)
	var order []string
	for _, edge := range result.Edges {
		pc := edge.ParameterContext
		g, ok := byContext[pc]
		if !ok {
			g = &CallerGroup{ParameterContext: pc}
			byContext[pc] = g
			order = append(order, pc)
		}
		g.Count++
		g.Callers = append(g.Callers, edge)
	}

	groups := make([]CallerGroup, 0, len(order))
	for _, pc := range order {
		groups = append(groups, *byContext[pc])
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Count > groups[j].Count })
	return groups, nil
}
