package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const dbUsage = "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] [-cx X -cy Y] snapshots|runs|chunks|edits|catalogs|summary"

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	cx := fs.Int("cx", -1, "chunk column filter (chunks, edits)")
	cy := fs.Int("cy", -1, "chunk row filter (chunks, edits)")
	run := fs.String("run", "", "run id filter (chunks, edits)")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "world.sqlite")
	}
	if *limit <= 0 {
		*limit = 20
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, q, queryFilter{Limit: *limit, CX: *cx, CY: *cy, Run: *run}, printJSON); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if strings.HasPrefix(err.Error(), "unknown query") {
			fmt.Fprintln(os.Stderr, dbUsage)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

type queryFilter struct {
	Limit  int
	CX, CY int
	Run    string
}

// where builds the chunk/run filter shared by the chunks and edits queries.
func (f queryFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.CX >= 0 {
		conds = append(conds, "cx=?")
		args = append(args, f.CX)
	}
	if f.CY >= 0 {
		conds = append(conds, "cy=?")
		args = append(args, f.CY)
	}
	if f.Run != "" {
		conds = append(conds, "run_id=?")
		args = append(args, f.Run)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func runQuery(db *sql.DB, q string, f queryFilter, emit func(any)) error {
	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT seq,path,world_id,run_id,seed,width,height,chunks,overrides,created_unix FROM snapshots ORDER BY seq DESC LIMIT ?`, f.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq       int64  `json:"seq"`
				Path      string `json:"path"`
				WorldID   string `json:"world_id"`
				RunID     string `json:"run_id"`
				Seed      int64  `json:"seed"`
				Width     int    `json:"width"`
				Height    int    `json:"height"`
				Chunks    int    `json:"chunks"`
				Overrides int    `json:"overrides"`
				Created   int64  `json:"created_unix"`
			}
			if err := rows.Scan(&r.Seq, &r.Path, &r.WorldID, &r.RunID, &r.Seed, &r.Width, &r.Height, &r.Chunks, &r.Overrides, &r.Created); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "runs":
		rows, err := db.Query(`SELECT run_id,world_id,seed,width,height,started_at FROM runs ORDER BY started_at DESC LIMIT ?`, f.Limit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				RunID     string `json:"run_id"`
				WorldID   string `json:"world_id"`
				Seed      int64  `json:"seed"`
				Width     int    `json:"width"`
				Height    int    `json:"height"`
				StartedAt string `json:"started_at"`
			}
			if err := rows.Scan(&r.RunID, &r.WorldID, &r.Seed, &r.Width, &r.Height, &r.StartedAt); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "chunks":
		where, args := f.where()
		rows, err := db.Query(`SELECT unix_ms,run_id,kind,cx,cy,IFNULL(digest,''),cells,spawns,build_ms,IFNULL(error,'') FROM chunk_events`+where+` ORDER BY id DESC LIMIT ?`, append(args, f.Limit)...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				UnixMS  int64  `json:"unix_ms"`
				RunID   string `json:"run_id"`
				Kind    string `json:"kind"`
				CX      int    `json:"cx"`
				CY      int    `json:"cy"`
				Digest  string `json:"digest,omitempty"`
				Cells   int    `json:"cells"`
				Spawns  int    `json:"spawns"`
				BuildMS int64  `json:"build_ms"`
				Error   string `json:"error,omitempty"`
			}
			if err := rows.Scan(&r.UnixMS, &r.RunID, &r.Kind, &r.CX, &r.CY, &r.Digest, &r.Cells, &r.Spawns, &r.BuildMS, &r.Error); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "edits":
		where, args := f.where()
		rows, err := db.Query(`SELECT unix_ms,run_id,cx,cy,x,y,tile FROM edits`+where+` ORDER BY id DESC LIMIT ?`, append(args, f.Limit)...)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				UnixMS int64  `json:"unix_ms"`
				RunID  string `json:"run_id"`
				CX     int    `json:"cx"`
				CY     int    `json:"cy"`
				X      int    `json:"x"`
				Y      int    `json:"y"`
				Tile   string `json:"tile"`
			}
			if err := rows.Scan(&r.UnixMS, &r.RunID, &r.CX, &r.CY, &r.X, &r.Y, &r.Tile); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at,length(json) FROM catalogs ORDER BY name`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
				Bytes     int    `json:"bytes"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt, &r.Bytes); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	case "summary":
		// Per-kind totals plus the slowest builds.
		rows, err := db.Query(`SELECT kind,COUNT(*),IFNULL(MAX(build_ms),0),IFNULL(AVG(build_ms),0) FROM chunk_events GROUP BY kind ORDER BY kind`)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind       string  `json:"kind"`
				Count      int     `json:"count"`
				MaxBuildMS int64   `json:"max_build_ms"`
				AvgBuildMS float64 `json:"avg_build_ms"`
			}
			if err := rows.Scan(&r.Kind, &r.Count, &r.MaxBuildMS, &r.AvgBuildMS); err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			emit(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s", q)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
