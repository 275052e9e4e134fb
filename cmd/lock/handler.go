package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"

	"github.com/projecteru2/core/log"
	"github.com/spf13/cobra"

	cmdcore "github.com/projecteru2/scopelock/cmd/core"
	"github.com/projecteru2/scopelock/lock/flock"
	"github.com/projecteru2/scopelock/types"
	"github.com/projecteru2/scopelock/utils"
)

type Handler struct {
	cmdcore.BaseHandler
}

// splitAtDash separates the scope from the command after "--".
func splitAtDash(cmd *cobra.Command, args []string) ([]string, []string, error) {
	dash := cmd.ArgsLenAtDash()
	if dash < 1 || dash >= len(args) {
		return nil, nil, fmt.Errorf("usage: %s", cmd.UseLine())
	}
	return args[:dash], args[dash:], nil
}

func (h Handler) Run(cmd *cobra.Command, args []string) error {
	ctx, conf, registry, err := h.InitRegistry(cmd)
	if err != nil {
		return err
	}
	scope, command, err := splitAtDash(cmd, args)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	actx, cancel := cmdcore.WithTimeout(ctx, timeout)
	release, holder, err := registry.Hold(actx, conf, scope, strings.Join(command, " "))
	cancel()
	if err != nil {
		return err
	}
	defer func() {
		// ctx may already be cancelled by a signal; cleanup must still run.
		if err := release.Dispose(context.WithoutCancel(ctx)); err != nil {
			log.WithFunc("cmd.run").Warnf(ctx, "release %s: %v", holder.ID, err)
		}
	}()

	child := exec.CommandContext(ctx, command[0], command[1:]...) //nolint:gosec
	child.Stdin, child.Stdout, child.Stderr = os.Stdin, cmd.OutOrStdout(), cmd.ErrOrStderr()
	child.Env = append(os.Environ(),
		"SCOPELOCK_HOLDER_ID="+holder.ID,
		"SCOPELOCK_SCOPE="+types.FormatScope(scope),
	)
	return child.Run()
}

func (h Handler) Status(cmd *cobra.Command, _ []string) error {
	ctx, _, registry, err := h.InitRegistry(cmd)
	if err != nil {
		return err
	}
	list, err := registry.List(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON || !cmdcore.IsTerminal(out) {
		if list == nil {
			list = []*types.Holder{}
		}
		return cmdcore.WriteJSON(out, list)
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No holders.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0) //nolint:mnd
	fmt.Fprintln(w, "ID\tSCOPE\tPID\tHELD\tCOMMAND")
	for _, hd := range list {
		pid := fmt.Sprint(hd.PID)
		if !utils.IsProcessAlive(hd.PID) {
			pid += " (dead)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			shortID(hd.ID), types.FormatScope(hd.Scope), pid, cmdcore.FormatAge(hd.AcquiredAt), hd.Command)
	}
	return w.Flush()
}

func (h Handler) Wait(cmd *cobra.Command, args []string) error {
	ctx, conf, err := h.Init(cmd)
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	path := conf.LockFile(args)

	err = utils.WaitFor(ctx, timeout, conf.PollInterval, func(ctx context.Context) (bool, error) {
		return scopeFree(ctx, path)
	})
	if err != nil {
		return fmt.Errorf("wait %s: %w", types.FormatScope(args), err)
	}
	log.WithFunc("cmd.wait").Infof(ctx, "%s is free", types.FormatScope(args))
	return nil
}

// scopeFree probes the lock file without creating it.
func scopeFree(ctx context.Context, path string) (bool, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return true, nil
	}
	fl := flock.New(path)
	ok, err := fl.TryLock(ctx)
	if err != nil || !ok {
		return false, err
	}
	return true, fl.Unlock(ctx)
}

func shortID(id string) string {
	const n = 8
	if len(id) > n {
		return id[:n]
	}
	return id
}
