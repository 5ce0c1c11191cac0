package web

import (
	"path/filepath"
	"runtime"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-recorder/pkg/capture"
	"github.com/teslashibe/go-recorder/pkg/export"
	"github.com/teslashibe/go-recorder/pkg/hub"
)

// ProcessStats describes the recorder process.
type ProcessStats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Goroutines int     `json:"goroutines"`
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Metrics      capture.Metrics `json:"metrics"`
	Process      ProcessStats    `json:"process"`
	MeterClients int             `json:"meter_clients"`
}

// ExportRequest is the body of POST /api/export.
type ExportRequest struct {
	// Format is "wav" or "lossy".
	Format      string `json:"format"`
	Path        string `json:"path"`
	BitrateKbps int    `json:"bitrate_kbps"`
}

func (s *Server) processStats() ProcessStats {
	st := ProcessStats{Goroutines: runtime.NumGoroutine()}
	if s.proc == nil {
		return st
	}
	if mem, err := s.proc.MemoryInfo(); err == nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := s.proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st
}

// handleStatus returns the recorder metrics and process stats
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Metrics:      s.rec.Metrics(),
		Process:      s.processStats(),
		MeterClients: s.meter.ClientCount(),
	})
}

func (s *Server) handleStart(c *fiber.Ctx) error {
	if err := s.rec.Start(); err != nil {
		return err
	}
	return s.stateChanged(c)
}

func (s *Server) handlePause(c *fiber.Ctx) error {
	s.rec.Pause()
	return s.stateChanged(c)
}

func (s *Server) handleResume(c *fiber.Ctx) error {
	s.rec.Resume()
	return s.stateChanged(c)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.rec.Stop(); err != nil {
		// The recorder is stopped regardless; report the teardown problem.
		s.logger.Warn("stop reported errors", "error", err)
	}
	return s.stateChanged(c)
}

func (s *Server) stateChanged(c *fiber.Ctx) error {
	m := s.rec.Metrics()
	s.publish(hub.EventState, m)
	return c.JSON(m)
}

// handleExport writes the current recording to disk
func (s *Server) handleExport(c *fiber.Ctx) error {
	var req ExportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid export request: "+err.Error())
	}
	if req.Format == "" {
		req.Format = string(export.FormatWAV)
	}

	ext := ".wav"
	switch req.Format {
	case string(export.FormatWAV):
	case "lossy":
		ext = ".bin"
		if enc := s.exporter.Lossy(); enc != nil {
			ext = "." + enc.Name()
		}
	default:
		return fiber.NewError(fiber.StatusBadRequest, "format must be \"wav\" or \"lossy\"")
	}

	path, err := s.exportPath(req.Path, ext)
	if err != nil {
		return err
	}

	rec := s.rec.Snapshot()

	var res export.Result
	if req.Format == "lossy" {
		res, err = s.exporter.ExportLossy(c.UserContext(), rec, path, req.BitrateKbps)
	} else {
		res, err = s.exporter.ExportLossless(rec, path)
	}
	if err != nil {
		return err
	}

	s.publish(hub.EventExport, res)
	return c.JSON(res)
}

// exportPath resolves a requested path inside the export directory,
// generating a unique name when none is given. Absolute paths and paths
// that escape the directory are rejected.
func (s *Server) exportPath(path, ext string) (string, error) {
	if path == "" {
		path = "recording-" + uuid.NewString() + ext
	}
	if !filepath.IsLocal(path) {
		return "", fiber.NewError(fiber.StatusBadRequest, "path must be relative to the export directory")
	}
	return filepath.Join(s.exportDir, path), nil
}

// handleMeterWS streams metrics events until the client disconnects
func (s *Server) handleMeterWS(c *websocket.Conn) {
	client, err := s.meter.Attach(c)
	if err != nil {
		s.logger.Debug("meter client rejected", "error", err)
		return
	}
	client.Run()
}
