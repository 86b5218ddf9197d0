/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Command yansd is the supervisor binary: it binds every configured
// service's socket, preforks their workers, and waits on a signal to
// shut them back down. A reexeced child finds YANSD_EDS_WORKER set in
// its environment and runs a single service's worker loop instead of
// the supervisor's own main path.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sebcat/yans-go/internal/daemonctl"
	"github.com/sebcat/yans-go/internal/eds"
	"github.com/sebcat/yans-go/internal/handlers/ethframe"
	"github.com/sebcat/yans-go/internal/handlers/kng"
	"github.com/sebcat/yans-go/internal/handlers/resolver"
	"github.com/sebcat/yans-go/internal/handlers/sysinfoapi"
	"github.com/sebcat/yans-go/internal/dnstres"
	"github.com/sebcat/yans-go/internal/svcconfig"
	"github.com/sebcat/yans-go/internal/ylog"
)

var (
	flagUser     string
	flagGroup    string
	flagBasePath string
	flagNoFork   bool
	flagService  string
)

func buildServiceTable(tbl svcconfig.Table, log *ylog.Logger) ([]*eds.Service, *kng.Handler) {
	pool := dnstres.NewPool(dnstres.Config{Workers: 4, Log: log})
	resolverHandler := resolver.New(pool)
	kngHandler := kng.New()
	hostname, _ := os.Hostname()
	sysinfoHandler := sysinfoapi.New(hostname)

	var services []*eds.Service
	for _, e := range tbl.Services {
		entry := e
		svc := &eds.Service{
			Name:         entry.Name,
			SocketPath:   filepath.Join(tbl.BasePath, entry.SocketPath),
			NProcs:       entry.NProcs,
			NFDs:         entry.NFDs,
			TickInterval: entry.TickInterval,
		}

		switch entry.Name {
		case "resolver":
			svc.InitialTransition = resolverHandler.InitialTransition
		case "kng":
			svc.InitialTransition = kngHandler.InitialTransition
		case "sysinfoapi":
			svc.InitialTransition = sysinfoHandler.InitialTransition
		case "ethframe":
			svc.InitialTransition = ethframe.New(nil).InitialTransition
		default:
			continue
		}

		services = append(services, svc)
	}

	return services, kngHandler
}

func main() {
	root := &cobra.Command{
		Use:   "yansd",
		Short: "yans supervisor daemon",
		RunE:  run,
	}

	root.Flags().StringVarP(&flagUser, "user", "u", "", "user name; accepted but not used, privileges are not dropped")
	root.Flags().StringVarP(&flagGroup, "group", "g", "", "group name; accepted but not used, privileges are not dropped")
	root.Flags().StringVarP(&flagBasePath, "basepath", "b", "/var/run/yansd", "base directory for sockets, pidfile and dump file")
	root.Flags().BoolVarP(&flagNoFork, "no-fork", "n", false, "keep log output on stderr instead of the dump file")
	root.Flags().StringVarP(&flagService, "service", "s", "", "run only this service, for debugging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if name := os.Getenv(eds.ReexecEnv); name != "" {
		return runReexecedWorker(name)
	}

	v := viper.New()
	v.Set("basepath", flagBasePath)
	tbl, err := svcconfig.Load(v)
	if err != nil {
		return err
	}

	log := ylog.Default()

	if err := os.MkdirAll(tbl.BasePath, 0o755); err != nil {
		return err
	}

	pf, err := daemonctl.CreatePidFile(tbl.BasePath, "yansd")
	if err != nil {
		return err
	}
	defer pf.Close()

	dump, err := daemonctl.OpenDumpFile(tbl.BasePath, "yansd")
	if err != nil {
		return err
	}
	defer dump.Close()
	if !flagNoFork {
		log.SetOutput(dump)
	}

	services, _ := buildServiceTable(tbl, log)
	if flagService != "" {
		services = filterServices(services, flagService)
	}

	sv := eds.NewSupervisor(services, log)
	if err := sv.Start(context.Background()); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	s := <-sig
	log.Entry(ylog.InfoLevel, "received signal, shutting down").
		FieldAdd("signal", s.String()).
		Log()

	return sv.Stop()
}

func runReexecedWorker(serviceName string) error {
	v := viper.New()
	v.Set("basepath", flagBasePath)
	tbl, err := svcconfig.Load(v)
	if err != nil {
		return err
	}

	log := ylog.Default()
	services, kngHandler := buildServiceTable(tbl, log)

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sig
		close(stop)
	}()

	err = eds.RunWorker(serviceName, services, log, stop)
	if serviceName == "kng" {
		kngHandler.Shutdown(time.Second)
	}
	return err
}

func filterServices(services []*eds.Service, name string) []*eds.Service {
	for _, s := range services {
		if s.Name == name {
			return []*eds.Service{s}
		}
	}
	return nil
}
