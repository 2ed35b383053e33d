package usecases

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/entities"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/ports"
	"github.com/KagamiharaNadeshiko/Table-RAG/internal/domain/tables"
)

// CleanupPlanner deletes everything derived from a set of source
// spreadsheets: stored tables, schema files and the spreadsheets themselves.
type CleanupPlanner struct {
	schemaDir string
	dataDir   string
	store     ports.TableStore
	logger    hclog.Logger

	// Out receives the plan and summary; In answers the confirmation prompt.
	Out io.Writer
	In  io.Reader
}

// NewCleanupPlanner creates a planner that prints nothing and never
// confirms on its own. Set Out and In for interactive use.
func NewCleanupPlanner(schemaDir, dataDir string, store ports.TableStore, logger hclog.Logger) *CleanupPlanner {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &CleanupPlanner{
		schemaDir: schemaDir,
		dataDir:   dataDir,
		store:     store,
		logger:    logger,
		Out:       io.Discard,
		In:        strings.NewReader(""),
	}
}

func normalizeTarget(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls") {
		return name
	}
	return name + ".xlsx"
}

// Plan resolves targets into the files and tables a cleanup would remove.
// Nothing is modified.
func (p *CleanupPlanner) Plan(targets []string) *entities.CleanupPlan {
	plan := &entities.CleanupPlan{SchemaTables: make(map[string]string)}
	for _, t := range targets {
		if t = strings.TrimSpace(t); t != "" {
			plan.Targets = append(plan.Targets, normalizeTarget(t))
		}
	}
	if len(plan.Targets) == 0 {
		return plan
	}

	seen := make(map[string]bool)
	for _, target := range plan.Targets {
		base := tables.BaseTableName(filepath.Base(target))
		plan.BaseNames = append(plan.BaseNames, base)
		for _, path := range p.matchingSchemaFiles(base) {
			if !seen[path] {
				seen[path] = true
				plan.SchemaFiles = append(plan.SchemaFiles, path)
			}
		}
	}
	plan.DataFiles = p.matchingDataFiles(plan.Targets)

	names := make(map[string]bool)
	for _, path := range plan.SchemaFiles {
		meta, err := tables.ReadSchemaMeta(path)
		if err == nil && meta.TableName == "" {
			err = errors.New("missing table_name")
		}
		if err != nil {
			p.logger.Error("failed to read schema file", "file", path, "error", err)
			plan.UnreadableSchemas = append(plan.UnreadableSchemas, path)
			continue
		}
		plan.SchemaTables[path] = meta.TableName
		names[meta.TableName] = true
	}
	for name := range names {
		plan.Tables = append(plan.Tables, name)
	}
	sort.Strings(plan.Tables)
	return plan
}

// matchingSchemaFiles returns base.json and every base_*.json.
func (p *CleanupPlanner) matchingSchemaFiles(base string) []string {
	entries, err := os.ReadDir(p.schemaDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		if name == base+".json" || strings.HasPrefix(name, base+"_") {
			out = append(out, filepath.Join(p.schemaDir, name))
		}
	}
	return out
}

func (p *CleanupPlanner) matchingDataFiles(targets []string) []string {
	entries, err := os.ReadDir(p.dataDir)
	if err != nil {
		return nil
	}
	want := make(map[string]bool, len(targets))
	for _, t := range targets {
		want[filepath.Base(t)] = true
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		lower := strings.ToLower(name)
		if e.IsDir() || !(strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls")) {
			continue
		}
		if want[name] {
			out = append(out, filepath.Join(p.dataDir, name))
		}
	}
	return out
}

// Execute presents plan and, unless dryRun, deletes it after confirmation.
// Tables are dropped first, then schema files, then data files; every
// item is attempted even when an earlier one failed.
func (p *CleanupPlanner) Execute(ctx context.Context, plan *entities.CleanupPlan, assumeYes, dryRun bool) entities.CleanupOutcome {
	out := entities.CleanupOutcome{DryRun: dryRun}
	if plan.Empty() {
		fmt.Fprintln(p.Out, "No targets provided. Use --target <excel_filename>.")
		out.ExitCode = entities.CleanupNoTargets
		return out
	}

	p.present(plan)
	if dryRun {
		fmt.Fprintln(p.Out, "Dry-run enabled. No changes were made.")
		out.ExitCode = entities.CleanupOK
		return out
	}
	if !assumeYes && !p.confirm() {
		fmt.Fprintln(p.Out, "Aborted by user.")
		out.ExitCode = entities.CleanupAborted
		return out
	}

	for _, path := range plan.UnreadableSchemas {
		out.Errors = append(out.Errors, "read "+path)
	}
	for _, name := range plan.Tables {
		if err := p.dropTable(ctx, name); err != nil {
			p.logger.Error("failed to drop table", "table", name, "error", err)
			out.Errors = append(out.Errors, fmt.Sprintf("drop %s: %v", name, err))
			continue
		}
		p.logger.Info("dropped table", "table", name)
		out.Dropped = append(out.Dropped, name)
	}
	out.RemovedSchemas = p.removeFiles(plan.SchemaFiles, &out.Errors)
	out.RemovedDataFiles = p.removeFiles(plan.DataFiles, &out.Errors)

	fmt.Fprintln(p.Out, "=== Summary ===")
	fmt.Fprintf(p.Out, "Tables dropped: %d\n", len(out.Dropped))
	fmt.Fprintf(p.Out, "Schema files removed: %d\n", len(out.RemovedSchemas))
	fmt.Fprintf(p.Out, "Data files removed: %d\n", len(out.RemovedDataFiles))
	if n := len(plan.UnreadableSchemas); n > 0 {
		fmt.Fprintf(p.Out, "Schema files failed to read: %d\n", n)
	}
	if len(out.Errors) > 0 {
		fmt.Fprintf(p.Out, "Errors: %d\n", len(out.Errors))
		out.ExitCode = entities.CleanupPartial
	}
	return out
}

func (p *CleanupPlanner) dropTable(ctx context.Context, name string) error {
	if p.store == nil {
		return errors.New("no table store configured")
	}
	return p.store.DropTable(ctx, name)
}

// removeFiles deletes each path; files already gone are skipped.
func (p *CleanupPlanner) removeFiles(paths []string, errs *[]string) []string {
	var removed []string
	for _, path := range paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			p.logger.Info("removed file", "file", path)
			removed = append(removed, path)
		case os.IsNotExist(err):
			p.logger.Info("file already absent", "file", path)
		default:
			p.logger.Error("failed to remove file", "file", path, "error", err)
			*errs = append(*errs, fmt.Sprintf("remove %s: %v", path, err))
		}
	}
	return removed
}

func (p *CleanupPlanner) present(plan *entities.CleanupPlan) {
	w := p.Out
	list := func(title string, items []string, suffix func(string) string) {
		fmt.Fprintln(w, title)
		if len(items) == 0 {
			fmt.Fprintln(w, "  (none)")
			return
		}
		for _, it := range items {
			fmt.Fprintf(w, "  - %s%s\n", it, suffix(it))
		}
	}
	none := func(string) string { return "" }

	fmt.Fprintln(w, "=== Deletion Plan ===")
	list("Targets (original spreadsheet filenames):", plan.Targets, none)
	list("\nResolved base table names:", plan.BaseNames, none)
	list("\nData files to delete:", plan.DataFiles, none)
	list("\nSchema files to delete:", plan.SchemaFiles, func(path string) string {
		name, ok := plan.SchemaTables[path]
		if !ok {
			name = "(unknown)"
		}
		return "  -> table `" + name + "`"
	})
	fmt.Fprintln(w)
}

// confirm reads one line; anything but y or yes, including EOF, is a no.
func (p *CleanupPlanner) confirm() bool {
	fmt.Fprint(p.Out, "Proceed with deletion? (y/N): ")
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
