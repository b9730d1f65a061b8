package commands

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/typewell/typewell/ata"
	"github.com/typewell/typewell/config"
	"github.com/typewell/typewell/errors"
	"github.com/typewell/typewell/logger"
	"github.com/typewell/typewell/service"
)

// ResolveCmd fetches the declaration closure of a package ahead of time
var ResolveCmd = &cobra.Command{
	Use:   "resolve <package>",
	Short: "Fetch the declaration files of a package",
	Long: `Resolve every declaration file a package publishes, the same way the query
server acquires them on demand. Useful for warming a CDN mirror or checking
what a package actually ships.

Examples:
  typewell resolve lodash
  typewell resolve @types/node`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	pkg := strings.TrimSpace(args[0])
	if pkg == "" || ata.IsKnownInvalidPackage(pkg) {
		return errors.Wrapf(errors.ErrInvalidRequest, "not a resolvable package name: %q", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	svc := service.New(cfg, nil, nil, logger.Logger)
	defer svc.Close()

	ctx := cmd.Context()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Listing %s", pkg))
	files := declarationFiles(svc.Index.FilesOf(ctx, pkg))
	if len(files) == 0 {
		// No usable listing; probe the conventional entry points
		files = []string{"/index" + ata.DeclarationSuffix, "/" + ata.ManifestName}
		spinner.Warning(fmt.Sprintf("No listing for %s, probing defaults", pkg))
	} else {
		spinner.Success(fmt.Sprintf("%s ships %d declaration files", pkg, len(files)))
	}

	bar, _ := pterm.DefaultProgressbar.WithTotal(len(files)).WithTitle("Fetching").Start()

	var resolved, absent, bytes int
	for _, rel := range files {
		bar.UpdateTitle(rel)
		text, ok := svc.Cache.Read(ctx, ata.NodeModulesPrefix+pkg+rel)
		if ok {
			resolved++
			bytes += len(text)
		} else {
			absent++
		}
		bar.Increment()
	}
	_, _ = bar.Stop()

	pterm.Printf("✅ Resolved %s files (%s bytes), %s absent\n",
		pterm.Green(fmt.Sprintf("%d", resolved)),
		pterm.Green(fmt.Sprintf("%d", bytes)),
		pterm.Yellow(fmt.Sprintf("%d", absent)))

	if resolved == 0 {
		return errors.Wrapf(errors.ErrNotFound, "no declarations resolved for %s", pkg)
	}
	return nil
}

// declarationFiles keeps the listing entries the cache will serve: declaration
// files plus the package manifest
func declarationFiles(files []string) []string {
	kept := make([]string, 0, len(files))
	for _, f := range files {
		if strings.HasSuffix(f, ata.DeclarationSuffix) || f == "/"+ata.ManifestName {
			kept = append(kept, f)
		}
	}
	return kept
}
