package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/markercam/pkg/calibration"
	"github.com/charlie0129/markercam/pkg/capture"
	"github.com/charlie0129/markercam/pkg/config"
	"github.com/charlie0129/markercam/pkg/control"
	"github.com/charlie0129/markercam/pkg/events"
	"github.com/charlie0129/markercam/pkg/pipeline"
	"github.com/charlie0129/markercam/pkg/vision"
)

// pipelineAPI is the part of the pipeline the HTTP handlers use.
type pipelineAPI interface {
	Status() calibration.Status
	Result() *calibration.Result
	InvalidateCalibration() error
}

var (
	pipe      pipelineAPI
	sseHub    *events.EventHub
	controls  *control.Queue
	sessionID string
)

// Options configures the daemon.
type Options struct {
	ConfigPath   string
	SocketPath   string
	AllowNonRoot bool

	TransportURL string
	Encoding     string
	Preview      capture.Preview
}

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/status", getStatus)
	router.GET("/calibration", getCalibration)
	router.DELETE("/calibration", deleteCalibration)
	router.GET("/events", getEvents)
	router.POST("/control/:event", postControl)
	router.GET("/version", getVersion)

	return router
}

// Run loads the profile, serves the control API on a unix socket and runs
// calibration followed by streaming until SIGINT or SIGTERM.
func Run(opts Options, toolkit vision.Toolkit) error {
	router := setupRoutes()

	f, err := config.NewFile(opts.ConfigPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	profile, err := config.Validate(f.Raw(), toolkit)
	if err != nil {
		logrus.Fatalf("invalid calibration profile: %v", err)
	}
	logrus.WithFields(profile.LogrusFields()).Infof("config loaded")

	sessionID = uuid.NewString()
	sseHub = events.NewEventHub()
	controls = control.NewQueue(control.DefaultQueueSize)
	p := &pipeline.Pipeline{
		Profile:          profile,
		Toolkit:          toolkit,
		Hub:              sseHub,
		Controls:         controls,
		Preview:          opts.Preview,
		TransportURL:     opts.TransportURL,
		Encoding:         opts.Encoding,
		ExitOnCalibrated: true,
	}
	pipe = p

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// A stale socket from an unclean shutdown blocks Listen.
	if err := os.Remove(opts.SocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}
	l, err := net.Listen("unix", opts.SocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if opts.AllowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", opts.SocketPath)
		err = os.Chmod(opts.SocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	go func() {
		logrus.WithField("session", sessionID).Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		logrus.Debugln("pipeline starts")
		done <- p.Run(ctx)
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigc:
		logrus.Infof("caught signal \"%s\": shutting down.", sig)
		controls.Push(control.EventStop)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			logrus.WithError(err).Error("pipeline exited")
		} else {
			logrus.Info("pipeline finished")
		}
	}

	logrus.Info("shutting down http server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	shutdownCancel()

	logrus.Info("exiting")
	return nil
}
