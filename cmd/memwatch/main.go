//go:build linux

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"

	"memkit/process"
	"memkit/process_linux"
	"memkit/scantask"
)

func main() {
	pidFlag := flag.Int("pid", 0, "Process ID to attach to")
	nameFlag := flag.String("name", "", "Executable name to attach to (lowest pid wins)")
	profileFlag := flag.String("profile", "", "YAML profile with targets and pointers")
	listenFlag := flag.String("listen", ":8080", "HTTP listen address")
	pollFlag := flag.Duration("poll", scantask.DefaultPollInterval, "Pause between scan passes")
	allFlag := flag.Bool("all", false, "Scan every readable mapping for '*' targets")
	flag.Parse()

	if *profileFlag == "" {
		fmt.Println("Error: --profile is required")
		flag.Usage()
		os.Exit(1)
	}

	profile, err := LoadProfileFile(*profileFlag)
	if err != nil {
		fmt.Printf("Error loading profile: %v\n", err)
		os.Exit(1)
	}

	var proc *process_linux.LinuxProcess
	switch {
	case *pidFlag != 0:
		proc, err = process_linux.NewWithPID(process.ProcessID(*pidFlag))
	case *nameFlag != "":
		proc, err = process_linux.OpenByName(*nameFlag)
	default:
		err = errors.New("one of --pid or --name is required")
	}
	if err != nil {
		fmt.Printf("Error attaching to process: %v\n", err)
		os.Exit(1)
	}
	defer proc.Close()

	watcher := NewWatcher(proc, profile,
		scantask.WithPollInterval(*pollFlag),
		scantask.WithAllPages(*allFlag),
	)
	watcher.Start()
	defer watcher.Stop()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    *listenFlag,
		Handler: NewRouter(watcher),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	fmt.Printf("Watching process %d, serving on %s\n", proc.GetPID(), *listenFlag)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Printf("Error serving: %v\n", err)
		os.Exit(1)
	}
}
