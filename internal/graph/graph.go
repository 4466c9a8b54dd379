// Package graph implements the associative knowledge graph used for
// recall: weighted entities and relationships that strengthen on
// re-observation and decay during consolidation.
package graph

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	// ReinforceDelta is added to a node's strength or an edge's weight
	// each time it is re-observed.
	ReinforceDelta = 0.5

	// DecayFactor multiplies every strength and weight once per
	// consolidation cycle.
	DecayFactor = 0.95

	// ForgetThreshold is the strength/weight below which an entry is
	// deleted during pruning.
	ForgetThreshold = 0.1

	// activationMin is the minimum strength for a node to participate
	// in recall.
	activationMin = 1.0

	// edgeMin is the minimum weight for an edge to participate in
	// recall.
	edgeMin = 0.5

	// maxRecallNodes caps how many nodes a recall query may activate.
	maxRecallNodes = 15
)

// Node is a graph entity. Label is the natural key, case-normalized.
type Node struct {
	Label     string    `json:"label"`
	Type      string    `json:"type"`
	Strength  float64   `json:"strength"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// Edge is a weighted relationship between two labels.
type Edge struct {
	Source       string    `json:"source"`
	Target       string    `json:"target"`
	Relationship string    `json:"relationship"`
	Weight       float64   `json:"weight"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Entity is an observed entity to upsert.
type Entity struct {
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Relation is an observed relationship to upsert.
type Relation struct {
	Source       string `json:"source"`
	Target       string `json:"target"`
	Relationship string `json:"rel"`
}

// Store persists the graph in the shared agent database.
type Store struct {
	db *sql.DB
}

// NewStore creates a graph store on an existing database connection and
// creates its tables if they do not already exist.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("graph migration: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS graph_nodes (
			label      TEXT PRIMARY KEY,
			type       TEXT NOT NULL DEFAULT '',
			strength   REAL NOT NULL DEFAULT 1.0,
			first_seen TEXT NOT NULL,
			last_seen  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS graph_edges (
			source       TEXT NOT NULL,
			target       TEXT NOT NULL,
			relationship TEXT NOT NULL,
			weight       REAL NOT NULL DEFAULT 1.0,
			updated_at   TEXT NOT NULL,
			UNIQUE(source, target, relationship)
		)
	`)
	return err
}

// normalize is the label key function: lowercase, whitespace-trimmed.
func normalize(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// Upsert records observed entities and relationships. New entries start
// at strength/weight 1.0; existing entries gain [ReinforceDelta] and
// refresh their last-seen timestamp. Upserts are idempotent in shape so
// concurrent producers (intake extraction, consolidation) can interleave
// freely.
func (s *Store) Upsert(entities []Entity, relations []Relation) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	for _, e := range entities {
		label := normalize(e.Label)
		if label == "" {
			continue
		}
		_, err := s.db.Exec(`
			INSERT INTO graph_nodes (label, type, strength, first_seen, last_seen)
			VALUES (?, ?, 1.0, ?, ?)
			ON CONFLICT(label) DO UPDATE SET
				strength = strength + ?,
				last_seen = excluded.last_seen
		`, label, strings.TrimSpace(e.Type), now, now, ReinforceDelta)
		if err != nil {
			return fmt.Errorf("upsert node %q: %w", label, err)
		}
	}

	for _, r := range relations {
		source := normalize(r.Source)
		target := normalize(r.Target)
		rel := normalize(r.Relationship)
		if source == "" || target == "" || rel == "" {
			continue
		}
		_, err := s.db.Exec(`
			INSERT INTO graph_edges (source, target, relationship, weight, updated_at)
			VALUES (?, ?, ?, 1.0, ?)
			ON CONFLICT(source, target, relationship) DO UPDATE SET
				weight = weight + ?,
				updated_at = excluded.updated_at
		`, source, target, rel, now, ReinforceDelta)
		if err != nil {
			return fmt.Errorf("upsert edge %q-%q: %w", source, target, err)
		}
	}

	return nil
}

// DecayAndPrune multiplies every node strength and edge weight by
// [DecayFactor], then deletes entries below [ForgetThreshold]. Edge
// deletion cascades: an edge is removed when its own weight falls below
// the threshold or when either endpoint node was pruned, so recall never
// sees dangling edges. The whole cycle runs in one transaction so
// pruning never observes pre-decay strengths.
func (s *Store) DecayAndPrune() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin decay: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE graph_nodes SET strength = strength * ?`, DecayFactor); err != nil {
		return fmt.Errorf("decay nodes: %w", err)
	}
	if _, err := tx.Exec(`UPDATE graph_edges SET weight = weight * ?`, DecayFactor); err != nil {
		return fmt.Errorf("decay edges: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM graph_nodes WHERE strength < ?`, ForgetThreshold); err != nil {
		return fmt.Errorf("prune nodes: %w", err)
	}
	if _, err := tx.Exec(`
		DELETE FROM graph_edges
		WHERE weight < ?
		   OR source NOT IN (SELECT label FROM graph_nodes)
		   OR target NOT IN (SELECT label FROM graph_nodes)
	`, ForgetThreshold); err != nil {
		return fmt.Errorf("prune edges: %w", err)
	}

	return tx.Commit()
}

// Recall answers an associative query: tokenize into terms of three or
// more characters, match node labels containing any term above the
// activation threshold, then walk edges touching the matched labels.
// Returns a short fact list, or "" when nothing matches.
func (s *Store) Recall(query string, limit int) (string, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return "", nil
	}
	if limit <= 0 {
		limit = 10
	}

	nodes, err := s.matchNodes(terms)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", nil
	}

	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = n.Label
	}

	edges, err := s.edgesTouching(labels, limit)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("Associative memory:\n")
	for _, n := range nodes {
		if n.Type != "" {
			fmt.Fprintf(&b, "- %s (%s, strength %.1f)\n", n.Label, n.Type, n.Strength)
		} else {
			fmt.Fprintf(&b, "- %s (strength %.1f)\n", n.Label, n.Strength)
		}
	}
	for _, e := range edges {
		fmt.Fprintf(&b, "- %s %s %s\n", e.Source, e.Relationship, e.Target)
	}
	return b.String(), nil
}

// queryTerms splits a query into lowercase terms of length >= 3.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,!?;:'\"()")
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

func (s *Store) matchNodes(terms []string) ([]Node, error) {
	conds := make([]string, len(terms))
	args := make([]any, 0, len(terms)+2)
	for i, t := range terms {
		conds[i] = "label LIKE ?"
		args = append(args, "%"+t+"%")
	}
	args = append(args, activationMin, maxRecallNodes)

	rows, err := s.db.Query(`
		SELECT label, type, strength, first_seen, last_seen FROM graph_nodes
		WHERE (`+strings.Join(conds, " OR ")+`) AND strength > ?
		ORDER BY strength DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("match nodes: %w", err)
	}
	defer rows.Close()
	return scanNodes(rows)
}

func (s *Store) edgesTouching(labels []string, limit int) ([]Edge, error) {
	placeholders := strings.Repeat("?,", len(labels))
	placeholders = strings.TrimSuffix(placeholders, ",")

	args := make([]any, 0, 2*len(labels)+2)
	for _, l := range labels {
		args = append(args, l)
	}
	for _, l := range labels {
		args = append(args, l)
	}
	args = append(args, edgeMin, limit)

	rows, err := s.db.Query(`
		SELECT source, target, relationship, weight, updated_at FROM graph_edges
		WHERE (source IN (`+placeholders+`) OR target IN (`+placeholders+`))
		  AND weight > ?
		ORDER BY weight DESC LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("edges touching: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var updatedAt string
		if err := rows.Scan(&e.Source, &e.Target, &e.Relationship, &e.Weight, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Snapshot returns every node and edge, strongest first. Used by the
// status surface and the heartbeat digest.
func (s *Store) Snapshot() ([]Node, []Edge, error) {
	rows, err := s.db.Query(`
		SELECT label, type, strength, first_seen, last_seen FROM graph_nodes
		ORDER BY strength DESC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot nodes: %w", err)
	}
	defer rows.Close()

	nodes, err := scanNodes(rows)
	if err != nil {
		return nil, nil, err
	}

	erows, err := s.db.Query(`
		SELECT source, target, relationship, weight, updated_at FROM graph_edges
		ORDER BY weight DESC
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot edges: %w", err)
	}
	defer erows.Close()

	var edges []Edge
	for erows.Next() {
		var e Edge
		var updatedAt string
		if err := erows.Scan(&e.Source, &e.Target, &e.Relationship, &e.Weight, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("scan edge: %w", err)
		}
		e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		edges = append(edges, e)
	}
	return nodes, edges, erows.Err()
}

// Counts returns the node and edge counts.
func (s *Store) Counts() (nodes, edges int) {
	s.db.QueryRow(`SELECT COUNT(*) FROM graph_nodes`).Scan(&nodes)
	s.db.QueryRow(`SELECT COUNT(*) FROM graph_edges`).Scan(&edges)
	return nodes, edges
}

// Reset deletes every node and edge.
func (s *Store) Reset() error {
	if _, err := s.db.Exec(`DELETE FROM graph_edges`); err != nil {
		return fmt.Errorf("reset edges: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM graph_nodes`); err != nil {
		return fmt.Errorf("reset nodes: %w", err)
	}
	return nil
}

func scanNodes(rows *sql.Rows) ([]Node, error) {
	var out []Node
	for rows.Next() {
		var n Node
		var firstSeen, lastSeen string
		if err := rows.Scan(&n.Label, &n.Type, &n.Strength, &firstSeen, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.FirstSeen, _ = time.Parse(time.RFC3339Nano, firstSeen)
		n.LastSeen, _ = time.Parse(time.RFC3339Nano, lastSeen)
		out = append(out, n)
	}
	return out, rows.Err()
}
