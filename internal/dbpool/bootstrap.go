package dbpool

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"shortlink/internal/util"
)

// Bootstrap executes the schema file statement by statement. Individual
// statement failures are logged and skipped so re-running against an
// existing schema stays harmless.
func Bootstrap(ctx context.Context, pool *Pool, schemaFile string, logger *zap.Logger) error {
	raw, err := os.ReadFile(schemaFile)
	if err != nil {
		return fmt.Errorf("dbpool: read schema file %s: %w", schemaFile, err)
	}

	sess, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("dbpool: bootstrap acquire: %w", err)
	}
	defer pool.Release(sess)

	executed := 0
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := sess.Exec(ctx, stmt); err != nil {
			logger.Warn("schema statement failed",
				util.String("statement", firstLine(stmt)),
				util.ErrorField(err),
			)
			continue
		}
		executed++
	}

	logger.Info("schema bootstrap completed", util.Int("statements", executed))
	return nil
}

func splitStatements(sql string) []string {
	var out []string
	for _, chunk := range strings.Split(sql, ";") {
		var lines []string
		for _, line := range strings.Split(chunk, "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "--") {
				continue
			}
			if i := strings.Index(line, "--"); i >= 0 {
				line = strings.TrimSpace(line[:i])
			}
			if line != "" {
				lines = append(lines, line)
			}
		}
		stmt := strings.TrimSpace(strings.Join(lines, " "))
		if stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

func firstLine(stmt string) string {
	if len(stmt) > 60 {
		return stmt[:60] + "..."
	}
	return stmt
}
