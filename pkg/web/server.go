package web

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/geniass/pricetrack/pkg/history"
	"github.com/geniass/pricetrack/pkg/scraper"
	"github.com/geniass/pricetrack/pkg/tracker"
)

// App is the state shared by the web handlers.
type App struct {
	Scheduler  *tracker.Scheduler
	Store      *history.Store
	PathPrefix string
	Logger     *slog.Logger
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// NewRouter registers the form's routes.
func NewRouter(a *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.logger()))

	r.GET("/", a.home)
	r.GET("/history", a.historyPage)
	r.POST("/products", a.addProduct)
	r.POST("/tasks/:id/stop", a.stopTask)
	return r
}

func requestLogger(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	}
}

func (a *App) home(c *gin.Context) {
	a.renderHome(c, http.StatusOK, "", false)
}

func (a *App) historyPage(c *gin.Context) {
	obs, err := a.Store.LoadAll()
	if err != nil {
		a.logger().Error("failed to load history", "error", err)
		c.String(http.StatusInternalServerError, "failed to load price history")
		return
	}

	var buf bytes.Buffer
	err = RenderHistory(&buf, HistoryContext{
		BaseContext:  BaseContext{PathPrefix: a.PathPrefix},
		Title:        "Price History",
		LastUpdated:  time.Now(),
		Observations: obs,
	})
	if err != nil {
		a.logger().Error("failed to render history", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (a *App) addProduct(c *gin.Context) {
	url := c.PostForm("url")

	var every tracker.Interval
	if choice := c.PostForm("every"); choice != "" {
		var err error
		if every, err = tracker.ParseInterval(choice); err != nil {
			a.renderHome(c, http.StatusBadRequest, "Invalid choice. Periodic check not enabled.", true)
			return
		}
	}

	o, task, err := a.Scheduler.AddProduct(c.Request.Context(), url, every)
	var serr *history.StorageError
	switch {
	case errors.Is(err, tracker.ErrEmptyURL):
		a.renderHome(c, http.StatusBadRequest, "Please enter a valid URL!", true)
		return
	case errors.Is(err, tracker.ErrTooManyTasks):
		msg := fmt.Sprintf("Added %s with price %s, but too many products are already checked periodically.", o.Title, o.Price)
		a.renderHome(c, http.StatusConflict, msg, true)
		return
	case errors.As(err, &serr):
		a.logger().Error("failed to record price", "url", url, "error", err)
		a.renderHome(c, http.StatusInternalServerError, "Could not save the price history.", true)
		return
	case err != nil:
		a.logger().Warn("failed to add product", "url", url, "error", err)
		status := http.StatusUnprocessableEntity
		if !errors.Is(err, scraper.ErrExtractionFailed) {
			status = http.StatusBadGateway
		}
		a.renderHome(c, status, "Failed to fetch product details. Check the URL.", true)
		return
	}

	msg := fmt.Sprintf("Added %s with price %s!", o.Title, o.Price)
	if task != nil {
		msg += fmt.Sprintf(" Checking %s.", task.Interval)
	}
	a.renderHome(c, http.StatusOK, msg, false)
}

func (a *App) stopTask(c *gin.Context) {
	if err := a.Scheduler.Stop(c.Param("id")); err != nil {
		a.renderHome(c, http.StatusNotFound, "That product is not being checked.", true)
		return
	}
	a.renderHome(c, http.StatusOK, "Periodic check stopped.", false)
}

// renderHome re-reads every log so the page always shows the full history.
func (a *App) renderHome(c *gin.Context, status int, flash string, flashError bool) {
	obs, err := a.Store.LoadAll()
	if err != nil {
		a.logger().Error("failed to load history", "error", err)
		c.String(http.StatusInternalServerError, "failed to load price history")
		return
	}

	var tasks []TaskView
	for _, t := range a.Scheduler.Tasks() {
		tasks = append(tasks, NewTaskView(t))
	}

	var buf bytes.Buffer
	err = RenderHome(&buf, HomeContext{
		HistoryContext: HistoryContext{
			BaseContext:  BaseContext{PathPrefix: a.PathPrefix},
			Title:        "Track a product",
			LastUpdated:  time.Now(),
			Observations: obs,
		},
		Tasks:      tasks,
		Flash:      flash,
		FlashError: flashError,
	})
	if err != nil {
		a.logger().Error("failed to render home page", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}
