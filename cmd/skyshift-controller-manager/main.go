/*
Copyright 2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/skyshift/skyshift/pkg/client"
	"github.com/skyshift/skyshift/pkg/constants"
	"github.com/skyshift/skyshift/pkg/controllers/manager"
	"github.com/skyshift/skyshift/pkg/managers/options"

	// Blank-imported so each backend's init registers itself with
	// clustermanager; manager.spawn resolves adapters by kind at runtime
	// and never references these packages directly.
	_ "github.com/skyshift/skyshift/pkg/clustermanager/cloud"
	_ "github.com/skyshift/skyshift/pkg/clustermanager/kubernetes"
	_ "github.com/skyshift/skyshift/pkg/clustermanager/ray"
	_ "github.com/skyshift/skyshift/pkg/clustermanager/slurm"
)

// start is the entry point to the controller manager.
func start() {
	clientOptions := &client.Options{}
	clientOptions.AddFlags(pflag.CommandLine)

	managerOptions := &options.Options{}
	managerOptions.AddFlags(pflag.CommandLine)

	pflag.Parse()

	zapLog, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	logger := zapr.NewLogger(zapLog).WithName(constants.Application)

	logger.Info("service starting", "application", constants.Application, "version", constants.Version, "revision", constants.Revision)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		<-stop

		logger.Info("shutting down")

		cancel()
	}()

	c := client.New(*clientOptions)

	m := manager.New(c, *managerOptions, logger)

	if err := m.Run(ctx); err != nil {
		logger.Error(err, "controller manager exited")
		os.Exit(1)
	}
}

func main() {
	start()
}
