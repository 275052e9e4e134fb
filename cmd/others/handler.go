package others

import (
	"fmt"
	"sort"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/scopelock/cmd/core"
	"github.com/projecteru2/scopelock/gc"
	"github.com/projecteru2/scopelock/version"
)

type Handler struct {
	cmdcore.BaseHandler
}

func (h Handler) GC(cmd *cobra.Command, _ []string) error {
	ctx, conf, registry, err := h.InitRegistry(cmd)
	if err != nil {
		return err
	}
	logger := log.WithFunc("cmd.gc")

	o := gc.New()
	registry.RegisterGC(o, conf)
	report, err := o.Run(ctx)
	modules := make([]string, 0, len(report))
	for name := range report {
		modules = append(modules, name)
	}
	sort.Strings(modules)
	for _, name := range modules {
		logger.Infof(ctx, "%s: removed %d", name, len(report[name]))
	}
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}
	logger.Info(ctx, "GC completed")
	return nil
}

func (h Handler) Version(cmd *cobra.Command, _ []string) error {
	fmt.Fprint(cmd.OutOrStdout(), version.String())
	return nil
}
