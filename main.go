package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"latex-mathedit/internal/assist"
	"latex-mathedit/internal/httpapi"
	"latex-mathedit/internal/logger"
)

//go:embed all:frontend/dist
var assets embed.FS

// Command line flags
var (
	configFlag = flag.String("config", "", "Path to the configuration file (default ~/.config/latex-mathedit/latex-mathedit-config.json)")
	debugFlag  = flag.Bool("debug", false, "Log at debug level and echo logs to the console")
)

// printHelp displays the help information for command line usage.
func printHelp() {
	fmt.Println("LaTeX Math Editor - 混合文本与数学公式编辑器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  latex-mathedit [选项]")
	fmt.Println()
	fmt.Println("选项:")
	fmt.Println("  --config <PATH>    配置文件路径")
	fmt.Println("  --debug            输出调试日志到控制台")
	fmt.Println("  -h, --help         显示帮助信息")
	fmt.Println()
	fmt.Println("说明:")
	fmt.Println("  命令行工具见 cmd/mathedit，浏览器预览服务见 cmd/mathpreview。")
}

// appSuggester adapts the App's current assistant to the HTTP API. The
// assistant is created at startup, after the router exists.
type appSuggester struct {
	app *App
}

func (s appSuggester) Suggest(ctx context.Context, expr string) (*assist.Suggestion, error) {
	return s.app.suggest(ctx, expr)
}

func initLogger(debug bool) {
	logPath := "latex-mathedit.log"
	if home, err := os.UserHomeDir(); err == nil {
		logPath = filepath.Join(home, ".config", "latex-mathedit", "latex-mathedit.log")
	}
	cfg := logger.DefaultConfig()
	cfg.LogFilePath = logPath
	if debug {
		cfg.Level = logger.LevelDebug
		cfg.EnableConsole = true
	}
	if err := logger.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "警告: 无法初始化日志: %v\n", err)
	}
}

func main() {
	flag.Usage = printHelp
	flag.Parse()

	initLogger(*debugFlag)
	defer logger.Close()

	app, err := NewAppWithConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
	app.SetWailsRuntime(true)

	api := httpapi.NewRouter(httpapi.Deps{
		Renderer:  app.renderer,
		Assistant: appSuggester{app: app},
	})

	err = wails.Run(&options.App{
		Title:  "LaTeX Math Editor",
		Width:  1024,
		Height: 768,
		AssetServer: &assetserver.Options{
			Assets:  assets,
			Handler: api,
		},
		BackgroundColour: &options.RGBA{R: 27, G: 38, B: 54, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		logger.Error("wails run failed", err)
		os.Exit(1)
	}
}
