// Package api serves the query endpoints over a loaded index.
//
// Identity arrives pre-resolved from a fronting proxy in the
// X-Remote-User and X-Remote-Admin headers. The handlers enforce that
// a non-admin caller only ever queries their own rows; the index
// itself applies whatever user set it is handed.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/index"
	"github.com/sganis/dutopia/pkg/logging"
)

const (
	headerUser  = "X-Remote-User"
	headerAdmin = "X-Remote-Admin"

	shutdownTimeout = 10 * time.Second
)

// Config controls the server.
type Config struct {
	Addr string
	// Ages holds the bucket boundaries used to age-filter file
	// listings. Folder rows carry their bucket from aggregation.
	Ages age.Config
}

// DefaultConfig returns the standard serving settings.
func DefaultConfig() Config {
	return Config{
		Addr: ":8080",
		Ages: age.DefaultConfig(),
	}
}

// Server answers folder and file queries against one immutable index
// snapshot.
type Server struct {
	cfg    Config
	idx    *index.Index
	engine *gin.Engine
	log    zerolog.Logger
	now    func() int64
}

// New wires the routes over ix.
func New(cfg Config, ix *index.Index) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		cfg:    cfg,
		idx:    ix,
		engine: gin.New(),
		log:    logging.WithPhase("api"),
		now:    func() int64 { return time.Now().Unix() },
	}
	s.engine.Use(gin.Recovery(), s.logRequests())

	grp := s.engine.Group("/api")
	grp.GET("/folders", s.handleFolders)
	grp.GET("/files", s.handleFiles)
	grp.GET("/users", s.handleUsers)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Addr,
		Handler: s.engine,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.cfg.Addr).Msg("serving")

	select {
	case err := <-errCh:
		return fmt.Errorf("api: %w", err)
	case <-ctx.Done():
	}
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		return fmt.Errorf("api: shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api: %w", err)
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(start)).
			Str("user", c.GetHeader(headerUser)).
			Msg("request")
	}
}

type identity struct {
	user  string
	admin bool
}

// caller reads the trusted proxy headers. A missing user is a 401; the
// service never serves anonymous queries.
func (s *Server) caller(c *gin.Context) (identity, bool) {
	user := c.GetHeader(headerUser)
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return identity{}, false
	}
	admin := c.GetHeader(headerAdmin)
	return identity{user: user, admin: admin == "true" || admin == "1"}, true
}

// userSet resolves the users query parameter under the caller's
// privilege. Admins may name any set, or none for all users. A
// restricted caller gets exactly their own set; naming anyone else is
// a 403, and an empty request means themselves, never everyone.
func (s *Server) userSet(c *gin.Context, id identity) (map[string]bool, bool) {
	set := make(map[string]bool)
	for _, u := range strings.Split(c.Query("users"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			set[u] = true
		}
	}
	if id.admin {
		return set, true
	}
	if len(set) == 0 {
		return map[string]bool{id.user: true}, true
	}
	if len(set) != 1 || !set[id.user] {
		c.JSON(http.StatusForbidden, gin.H{"error": "not allowed to query other users"})
		return nil, false
	}
	return set, true
}

func (s *Server) query(c *gin.Context) (path string, set map[string]bool, ageSel int, ok bool) {
	id, ok := s.caller(c)
	if !ok {
		return "", nil, 0, false
	}
	set, ok = s.userSet(c, id)
	if !ok {
		return "", nil, 0, false
	}
	path = c.DefaultQuery("path", "/")
	ageSel, err := age.ParseFilter(c.DefaultQuery("age", "-1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return "", nil, 0, false
	}
	return path, set, ageSel, true
}

func (s *Server) handleFolders(c *gin.Context) {
	path, set, ageSel, ok := s.query(c)
	if !ok {
		return
	}
	items, found := s.idx.Folders(path, set, ageSel)
	if items == nil {
		items = []index.FolderItem{}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"found": found,
		"items": items,
	})
}

func (s *Server) handleFiles(c *gin.Context) {
	path, set, ageSel, ok := s.query(c)
	if !ok {
		return
	}
	files, found := s.idx.Files(path, set, ageSel, s.cfg.Ages, s.now())
	if files == nil {
		files = []index.FileEntry{}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	c.JSON(http.StatusOK, gin.H{
		"path":  path,
		"found": found,
		"items": files,
	})
}

func (s *Server) handleUsers(c *gin.Context) {
	id, ok := s.caller(c)
	if !ok {
		return
	}
	if !id.admin {
		c.JSON(http.StatusOK, gin.H{"users": []string{id.user}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": s.idx.Users()})
}
