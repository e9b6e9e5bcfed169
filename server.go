package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

//go:embed web/*.html
var webFS embed.FS

const (
	minIntervalSeconds = 2
	maxIntervalSeconds = 30
	maxAttachmentBytes = 16 << 20
	pendingSessionTTL  = time.Hour
)

type pendingSession struct {
	session   *Session
	lines     int // non-blank input lines, valid or not
	createdAt time.Time
}

// Server is the browser front end: a form to paste contacts and a message, a
// confirmation step, and the per-run report.
type Server struct {
	cfg    *Config
	parser *ContactParser
	sender Sender
	store  ReportStore
	logger zerolog.Logger

	// sleep overrides the pause between sends; nil means real time.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time

	mu      sync.Mutex
	pending map[string]pendingSession

	// runMu admits one run at a time; the live sender drives a single browser.
	runMu sync.Mutex
}

func NewServer(cfg *Config, sender Sender, store ReportStore, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		parser:  NewContactParser(cfg.PhonePolicy()),
		sender:  sender,
		store:   store,
		logger:  logger,
		now:     time.Now,
		pending: make(map[string]pendingSession),
	}
}

func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.logger))
	r.MaxMultipartMemory = maxAttachmentBytes

	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"percent": func(f float64) string { return strconv.FormatFloat(f, 'f', 1, 64) + "%" },
	}).ParseFS(webFS, "web/*.html"))
	r.SetHTMLTemplate(tmpl)

	r.GET("/health", s.health)
	r.GET("/", s.index)
	r.POST("/preview", s.preview)
	r.POST("/sessions/:id/send", s.send)
	r.GET("/runs/:id", s.result)
	r.GET("/runs/:id/report.csv", s.reportCSV)

	return r
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.formData(c, ""))
}

func (s *Server) formData(c *gin.Context, errMsg string) gin.H {
	interval := c.PostForm("interval")
	if interval == "" {
		interval = strconv.Itoa(clampInterval(s.cfg.Sending.IntervalSeconds))
	}
	return gin.H{
		"Contacts":    c.PostForm("contacts"),
		"Message":     c.PostForm("message"),
		"Interval":    interval,
		"MinInterval": minIntervalSeconds,
		"MaxInterval": maxIntervalSeconds,
		"Error":       errMsg,
	}
}

func (s *Server) preview(c *gin.Context) {
	text := c.PostForm("contacts")
	message := strings.ReplaceAll(c.PostForm("message"), "\r\n", "\n")

	interval, err := strconv.Atoi(c.DefaultPostForm("interval", strconv.Itoa(s.cfg.Sending.IntervalSeconds)))
	if err != nil {
		c.HTML(http.StatusBadRequest, "index.html", s.formData(c, "interval must be a whole number of seconds"))
		return
	}
	interval = clampInterval(interval)

	attachment, err := readUploadedAttachment(c)
	if err != nil {
		s.logger.Warn().Err(err).Msg("attachment upload failed")
		c.HTML(http.StatusBadRequest, "index.html", s.formData(c, err.Error()))
		return
	}

	contacts, lines := s.parser.ParseStats(text)

	opts, err := newSessionOptions(s.cfg, message, s.sender, s.logger)
	if err != nil {
		c.HTML(http.StatusInternalServerError, "index.html", s.formData(c, err.Error()))
		return
	}
	opts.Interval = time.Duration(interval) * time.Second
	opts.Attachment = attachment
	opts.Sleep = s.sleep

	session := NewSession(contacts, message, opts)
	if err := session.RequestConfirmation(); err != nil {
		c.HTML(http.StatusBadRequest, "index.html", s.formData(c, err.Error()))
		return
	}

	s.addPending(session, lines)

	c.HTML(http.StatusOK, "preview.html", previewData(session, lines, interval, ""))
}

func previewData(session *Session, lines, interval int, errMsg string) gin.H {
	data := gin.H{
		"SessionID": session.ID(),
		"Contacts":  session.Contacts(),
		"Valid":     len(session.Contacts()),
		"Invalid":   lines - len(session.Contacts()),
		"Sample":    session.Preview(),
		"Interval":  interval,
		"Error":     errMsg,
	}
	if att := session.Attachment(); att != nil {
		data["AttachmentName"] = att.Filename
	}
	return data
}

func (s *Server) send(c *gin.Context) {
	id := c.Param("id")
	pending, ok := s.getPending(id)
	if !ok {
		c.String(http.StatusNotFound, ErrSessionNotFound.Error())
		return
	}
	session := pending.session

	if c.PostForm("confirm") != "yes" {
		c.HTML(http.StatusBadRequest, "preview.html",
			previewData(session, pending.lines, int(session.opts.Interval/time.Second), "tick the confirmation box to send"))
		return
	}

	if !s.runMu.TryLock() {
		c.String(http.StatusConflict, "another send run is in progress")
		return
	}
	defer s.runMu.Unlock()

	// A session is sent at most once.
	if !s.takePending(id) {
		c.String(http.StatusNotFound, ErrSessionNotFound.Error())
		return
	}

	if err := session.Confirm(); err != nil {
		c.String(http.StatusConflict, err.Error())
		return
	}

	run, err := session.Run(c.Request.Context())
	if err != nil && run == nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("send run interrupted")
	}

	// Save with a fresh context; the request may already be gone.
	if err := s.store.Save(context.WithoutCancel(c.Request.Context()), run); err != nil {
		s.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to store run")
		c.String(http.StatusInternalServerError, "run finished but could not be stored")
		return
	}

	c.Redirect(http.StatusSeeOther, "/runs/"+run.ID)
}

func (s *Server) result(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}
	c.HTML(http.StatusOK, "result.html", gin.H{
		"Run":    run,
		"Report": BuildReport(run),
	})
}

func (s *Server) reportCSV(c *gin.Context) {
	run, ok := s.lookupRun(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := BuildReport(run).WriteCSV(&buf); err != nil {
		c.String(http.StatusInternalServerError, err.Error())
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+ReportFilename(s.now())+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (s *Server) lookupRun(c *gin.Context) (*SendRun, bool) {
	run, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrRunNotFound) {
		c.String(http.StatusNotFound, "run not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load run")
		c.String(http.StatusInternalServerError, "failed to load run")
		return nil, false
	}
	return run, true
}

func (s *Server) addPending(session *Session, lines int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, p := range s.pending {
		if now.Sub(p.createdAt) > pendingSessionTTL {
			delete(s.pending, id)
		}
	}
	s.pending[session.ID()] = pendingSession{session: session, lines: lines, createdAt: now}
}

func (s *Server) getPending(id string) (pendingSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	return p, ok
}

func (s *Server) takePending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	return ok
}

func readUploadedAttachment(c *gin.Context) (*Attachment, error) {
	fh, err := c.FormFile("attachment")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentIO, err)
	}
	if fh.Size == 0 {
		return nil, nil
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentIO, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAttachmentIO, err)
	}
	return NewAttachment(fh.Filename, data), nil
}

func clampInterval(seconds int) int {
	if seconds < minIntervalSeconds {
		return minIntervalSeconds
	}
	if seconds > maxIntervalSeconds {
		return maxIntervalSeconds
	}
	return seconds
}

// requestLogger logs every request through zerolog.
func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Str("remote_addr", c.ClientIP()).
			Msg("request")
	}
}
