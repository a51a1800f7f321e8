package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"pybox/internal/config"
)

const probeTimeout = 2 * time.Second

// minFreeTempBytes is the low-water mark for sandbox disk space (100 MB).
const minFreeTempBytes = 100 * 1024 * 1024

// HealthHandler reports whether the engine can actually execute code: the
// interpreter resolves and starts, child processes can be spawned, sandbox
// directories can be created, and the temp filesystem has space left.
type HealthHandler struct {
	cfg    config.ExecutionConfig
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(cfg config.ExecutionConfig, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, logger: logger}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	// Check 1: the interpreter resolves and reports a version.
	interpreterPath, version, err := h.probeInterpreter(c.Request.Context())
	if err != nil {
		checks["python_executable"] = gin.H{"status": "error", "error": err.Error()}
		healthy = false
	} else {
		checks["python_executable"] = gin.H{"status": "ok", "path": interpreterPath, "version": version}
	}

	// Check 2: a child process can be spawned and produces output.
	if err != nil {
		checks["subprocess_creation"] = gin.H{"status": "error", "error": "interpreter unavailable"}
		healthy = false
	} else if spawnErr := h.probeSpawn(c.Request.Context(), interpreterPath); spawnErr != nil {
		checks["subprocess_creation"] = gin.H{"status": "error", "error": spawnErr.Error()}
		healthy = false
	} else {
		checks["subprocess_creation"] = gin.H{"status": "ok"}
	}

	// Check 3: sandbox directories can be created.
	if dirErr := probeTempDir(); dirErr != nil {
		checks["temp_directory"] = gin.H{"status": "error", "error": dirErr.Error()}
		healthy = false
	} else {
		checks["temp_directory"] = gin.H{"status": "ok"}
	}

	// Check 4: free space where sandboxes live.
	freeBytes, statErr := tempFreeBytes()
	switch {
	case statErr != nil:
		checks["disk_space"] = gin.H{"status": "warning", "error": statErr.Error()}
	case freeBytes < minFreeTempBytes:
		checks["disk_space"] = gin.H{"status": "warning", "free_bytes": freeBytes}
		healthy = false
	default:
		checks["disk_space"] = gin.H{"status": "ok", "free_bytes": freeBytes}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		h.logger.Warn("Health check failed", zap.Any("checks", checks))
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func (h *HealthHandler) probeInterpreter(ctx context.Context) (path, version string, err error) {
	path, err = exec.LookPath(h.cfg.PythonPath)
	if err != nil {
		return "", "", fmt.Errorf("interpreter not found: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").CombinedOutput()
	if err != nil {
		return "", "", fmt.Errorf("interpreter failed to run: %w", err)
	}
	return path, strings.TrimSpace(string(out)), nil
}

func (h *HealthHandler) probeSpawn(ctx context.Context, interpreterPath string) error {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, interpreterPath, "-c", "print('ok')").Output()
	if err != nil {
		return fmt.Errorf("cannot spawn child process: %w", err)
	}
	if strings.TrimSpace(string(out)) != "ok" {
		return fmt.Errorf("unexpected child output: %q", string(out))
	}
	return nil
}

func probeTempDir() error {
	dir, err := os.MkdirTemp("", "pybox-health-*")
	if err != nil {
		return fmt.Errorf("cannot create temp directory: %w", err)
	}
	return os.RemoveAll(dir)
}

func tempFreeBytes() (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(os.TempDir(), &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
