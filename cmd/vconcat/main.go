package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/ivlev/vconcat/internal/config"
	"github.com/ivlev/vconcat/internal/effects"
	"github.com/ivlev/vconcat/internal/engine"
	"github.com/ivlev/vconcat/internal/metrics"
	"github.com/ivlev/vconcat/internal/system"
)

func main() {
	// Увеличиваем лимиты системы (для macOS/Linux)
	system.InitResourceLimits()

	configPtr := flag.String("config", "", "YAML-файл конфигурации (флаги имеют приоритет)")
	outputPtr := flag.String("o", "", "Путь к видео (если пусто, генерируется автоматически в output/)")
	workersPtr := flag.Int("workers", system.DefaultWorkers(), "Потоки рендеринга")
	formatPtr := flag.String("format", "raw", "Формат кадров: raw, png, jpg")
	transitionPtr := flag.String("transition", "fade", "Переход: "+strings.Join(effects.Names(), ", "))
	durationPtr := flag.Float64("duration", 0.5, "Длительность перехода (сек), 0 - склейка встык")
	easingPtr := flag.String("easing", "linear", "Кривая перехода: linear, easeInQuad, easeOutQuad, easeInOutCubic, easeInOutSine")
	audioPtr := flag.String("audio", "", "Внешняя аудиодорожка (отключает склейку звука клипов)")
	tempPtr := flag.String("temp", "", "Постоянная рабочая папка (не удаляется)")
	keepPtr := flag.Bool("keep-frames", false, "Не удалять кадры после сборки")
	verbosePtr := flag.Bool("verbose", false, "Подробный вывод, дамп scenario.yaml")
	debugPtr := flag.Bool("debug", false, "QR-код с номером кадра в углу")
	widthPtr := flag.Int("width", 0, "Ширина (0 - как у первого клипа)")
	heightPtr := flag.Int("height", 0, "Высота (0 - как у первого клипа)")
	fpsPtr := flag.Int("fps", 0, "FPS (0 - как у первого клипа)")
	bgPtr := flag.String("background", config.DefaultBackground, "Цвет полей при вписывании")
	encoderPtr := flag.String("encoder", "", "Видеоэнкодер (пусто - автовыбор)")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	metricsPtr := flag.String("metrics-file", "", "Записать метрики Prometheus в файл")
	scenarioPtr := flag.String("scenario", "", "Повторить сценарий из scenario.yaml (клипы не нужны)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Использование: %s [флаги] clip1.mp4 clip2.mp4 [...]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(flag.CommandLine.Output(), "           %s -scenario scenario.yaml [флаги]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg := config.Default()
	if *configPtr != "" {
		loaded, err := config.LoadFile(*configPtr)
		if err != nil {
			log.Fatalf("[-] Ошибка конфигурации: %v", err)
		}
		cfg = loaded
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	// флаги перекрывают файл, только если заданы явно (или файла нет)
	use := func(name string) bool { return set[name] || *configPtr == "" }

	for _, p := range flag.Args() {
		cfg.Sources = append(cfg.Sources, config.SourceConfig{Path: p})
	}
	if use("o") {
		cfg.Output = *outputPtr
	}
	if use("workers") {
		cfg.Concurrency = *workersPtr
	}
	if use("format") {
		cfg.FrameFormat = config.FrameFormat(*formatPtr)
	}
	if use("transition") || use("duration") || use("easing") {
		spec := config.TransitionSpec{Name: *transitionPtr, Duration: *durationPtr, Easing: *easingPtr}
		if cfg.Transition != nil && *configPtr != "" {
			spec = *cfg.Transition
			if set["transition"] {
				spec.Name = *transitionPtr
			}
			if set["duration"] {
				spec.Duration = *durationPtr
			}
			if set["easing"] {
				spec.Easing = *easingPtr
			}
		}
		cfg.Transition = &spec
	}
	if use("audio") {
		cfg.Audio = *audioPtr
	}
	if use("temp") {
		cfg.TempDir = *tempPtr
	}
	if set["keep-frames"] {
		cfg.CleanupFrames = !*keepPtr
	}
	if set["verbose"] {
		cfg.Verbose = *verbosePtr
	}
	if set["debug"] {
		cfg.Debug = *debugPtr
	}
	if use("width") {
		cfg.Width = *widthPtr
	}
	if use("height") {
		cfg.Height = *heightPtr
	}
	if use("fps") {
		cfg.FPS = *fpsPtr
	}
	if use("background") {
		cfg.Background = *bgPtr
	}
	if use("encoder") {
		cfg.VideoEncoder = *encoderPtr
	}
	if use("quality") {
		cfg.Quality = *qualityPtr
	}
	if use("metrics-file") {
		cfg.MetricsFile = *metricsPtr
	}
	if use("scenario") {
		cfg.Scenario = *scenarioPtr
	}

	if cfg.Output == "" && (len(cfg.Sources) > 0 || cfg.Scenario != "") {
		name := cfg.Scenario
		if len(cfg.Sources) > 0 {
			name = cfg.Sources[0].Path
		}
		cfg.Output = defaultOutput(name)
		fmt.Printf("[*] Результат будет записан в: %s\n", cfg.Output)
	}

	level := hclog.Info
	if cfg.Verbose {
		level = hclog.Debug
	}
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "vconcat",
		Level:  level,
		Output: os.Stderr,
	})

	cfg.Log = func(line string) { fmt.Printf("\r[>] %-24s", line) }

	runner := system.ExecRunner{}
	if cfg.Verbose {
		runner.Tee = os.Stderr
	}

	project := engine.NewProject(cfg, engine.DefaultComponents(cfg, runner, logger), logger)
	if cfg.MetricsFile != "" {
		project.Metrics = metrics.New()
	}
	project.OnState = func(s engine.State) {
		if cfg.Verbose {
			fmt.Printf("\n[*] Этап: %s\n", s)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	if err := project.Run(ctx); err != nil {
		fmt.Println()
		if engine.IsCanceled(err) {
			log.Fatalf("[!] Прервано пользователем")
		}
		log.Fatalf("[-] Ошибка проекта: %v", err)
	}

	fmt.Printf("\n[+++] Успех! Результат: %s (%.2fs)\n", cfg.Output, time.Since(start).Seconds())
}

// defaultOutput names the result after the first clip and the current time.
func defaultOutput(first string) string {
	base := filepath.Base(first)
	name := strings.ReplaceAll(strings.TrimSuffix(base, filepath.Ext(base)), " ", "_")
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join("output", fmt.Sprintf("%s_concat_%s.mp4", name, timestamp))
}
