package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pitabwire/util"

	"github.com/wosguides/guides"
	"github.com/wosguides/guides/api"
	"github.com/wosguides/guides/config"
	"github.com/wosguides/guides/localization"
	"github.com/wosguides/guides/version"
)

const minArgsCommand = 2

func main() {
	if len(os.Args) < minArgsCommand {
		usage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch os.Args[1] {
	case "categories":
		exitOnErr(cmdCategories(ctx, os.Args[2:]))
	case "category":
		exitOnErr(cmdCategory(ctx, os.Args[2:]))
	case "guides":
		exitOnErr(cmdGuides(ctx, os.Args[2:]))
	case "guide":
		exitOnErr(cmdGuide(ctx, os.Args[2:]))
	case "search":
		exitOnErr(cmdSearch(ctx, os.Args[2:]))
	case "language":
		exitOnErr(cmdLanguage(ctx, os.Args[2:]))
	case "onboarding":
		exitOnErr(cmdOnboarding(ctx, os.Args[2:]))
	case "cache":
		exitOnErr(cmdCache(ctx, os.Args[2:]))
	case "version":
		fmt.Fprintln(os.Stdout, version.String())
	case "help", "-h", "--help":
		usage()
	default:
		// #nosec G705 -- CLI output is not rendered in an HTML context.
		fmt.Fprintf(os.Stderr, "unknown command: %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stdout, "guides <command> [--config FILE] [--lang CODE] [args]")
	fmt.Fprintln(os.Stdout, "")
	fmt.Fprintln(os.Stdout, "Commands:")
	fmt.Fprintln(os.Stdout, "  categories [--parent ID]")
	fmt.Fprintln(os.Stdout, "  category <id>")
	fmt.Fprintln(os.Stdout, "  guides [--category ID]")
	fmt.Fprintln(os.Stdout, "  guide <id>")
	fmt.Fprintln(os.Stdout, "  search <query>")
	fmt.Fprintln(os.Stdout, "  language [code]")
	fmt.Fprintln(os.Stdout, "  onboarding [--complete]")
	fmt.Fprintln(os.Stdout, "  cache clear")
	fmt.Fprintln(os.Stdout, "  version")
}

func exitOnErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}

// commonFlags are accepted by every command that needs the service.
type commonFlags struct {
	configFile string
	lang       string
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	cf := &commonFlags{}
	fs.StringVar(&cf.configFile, "config", os.Getenv("GUIDES_CONFIG"), "yaml configuration file")
	fs.StringVar(&cf.lang, "lang", "", "language for this invocation only")
	return fs, cf
}

func withService(ctx context.Context, cf *commonFlags, run func(ctx context.Context, svc *guides.Service) error) error {
	cfg, err := config.LoadFile[config.ConfigurationDefault](cf.configFile)
	if err != nil {
		return err
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version.Version
	}

	ctx, svc, err := guides.NewService(ctx, "", guides.WithConfig(&cfg))
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := svc.Stop(ctx); stopErr != nil {
			util.Log(ctx).WithError(stopErr).Warn("service did not stop cleanly")
		}
	}()

	if cf.lang != "" {
		if !localization.IsSupported(cf.lang) {
			return fmt.Errorf("unsupported language: %s", cf.lang)
		}
		ctx = localization.ToContext(ctx, cf.lang)
	}
	return run(ctx, svc)
}

func language(ctx context.Context, svc *guides.Service) string {
	if lang, ok := localization.FromContext(ctx); ok {
		return lang
	}
	return svc.Language()
}

func printCategories(ctx context.Context, svc *guides.Service, categories []api.Category) {
	lang := language(ctx, svc)
	for _, c := range categories {
		fmt.Fprintf(os.Stdout, "%s\t%s\n", c.ID, localization.Resolve(ctx, c.Name, lang))
	}
}

func printGuides(ctx context.Context, svc *guides.Service, items []api.Guide) {
	lang := language(ctx, svc)
	for _, g := range items {
		fmt.Fprintf(os.Stdout, "%s\t%s\t%s\n", g.ID, localization.Resolve(ctx, g.Title, lang), strings.Join(g.Tags, ","))
	}
}

func cmdCategories(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("categories")
	parent := fs.String("parent", "", "list the subcategories of this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		var (
			categories []api.Category
			err        error
		)
		if *parent != "" {
			categories, err = svc.Subcategories(ctx, *parent)
		} else {
			categories, err = svc.Categories(ctx)
		}
		if err != nil {
			return err
		}
		printCategories(ctx, svc, categories)
		return nil
	})
}

func cmdCategory(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("category id is required")
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		c, err := svc.Category(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		lang := language(ctx, svc)
		fmt.Fprintf(os.Stdout, "%s\n%s\n", localization.Resolve(ctx, c.Name, lang),
			localization.Resolve(ctx, c.Description, lang))
		return nil
	})
}

func cmdGuides(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("guides")
	category := fs.String("category", "", "only guides of this category")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		var (
			items []api.Guide
			err   error
		)
		if *category != "" {
			items, err = svc.GuidesByCategory(ctx, *category)
		} else {
			items, err = svc.Guides(ctx)
		}
		if err != nil {
			return err
		}
		printGuides(ctx, svc, items)
		return nil
	})
}

func cmdGuide(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("guide")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return errors.New("guide id is required")
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		g, err := svc.Guide(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "%s\n\n%s\n", localization.Resolve(ctx, g.Title, language(ctx, svc)), g.HTMLContent)
		return nil
	})
}

func cmdSearch(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("search")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		items, err := svc.SearchGuides(ctx, strings.Join(fs.Args(), " "))
		if err != nil {
			return err
		}
		printGuides(ctx, svc, items)
		return nil
	})
}

func cmdLanguage(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("language")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		if fs.NArg() == 0 {
			fmt.Fprintln(os.Stdout, svc.Language())
			return nil
		}

		code := fs.Arg(0)
		if !localization.IsSupported(code) {
			return fmt.Errorf("unsupported language: %s", code)
		}
		if svc.ChangeLanguage(ctx, code) {
			fmt.Fprintln(os.Stdout, svc.Translate(ctx, localization.MsgRestartRequired))
		}
		fmt.Fprintln(os.Stdout, svc.Language())
		return nil
	})
}

func cmdOnboarding(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("onboarding")
	complete := fs.Bool("complete", false, "mark onboarding as completed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		if *complete {
			if err := svc.CompleteOnboarding(ctx); err != nil {
				return err
			}
		}
		fmt.Fprintln(os.Stdout, svc.IsOnboardingCompleted(ctx))
		return nil
	})
}

func cmdCache(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("cache")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 || fs.Arg(0) != "clear" {
		return errors.New("usage: guides cache clear")
	}

	return withService(ctx, cf, func(ctx context.Context, svc *guides.Service) error {
		return svc.ClearCache(ctx)
	})
}
