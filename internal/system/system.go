package system

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"runtime"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// InitResourceLimits raises the open-file soft limit. Every worker keeps a
// couple of frame files open at once.
func InitResourceLimits() {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		log.Printf("[!] Не удалось получить лимит файлов: %v", err)
		return
	}

	if rLimit.Cur >= 2048 {
		return
	}
	rLimit.Cur = 2048
	if rLimit.Cur > rLimit.Max {
		rLimit.Cur = rLimit.Max
	}

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		log.Printf("[!] Не удалось установить лимит файлов: %v", err)
	}
}

// DefaultWorkers suggests a render pool size: physical cores, falling back to
// the logical CPU count.
func DefaultWorkers() int {
	n, err := cpu.Counts(false)
	if err != nil || n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// HostReport is a one-line summary of the machine for verbose output.
func HostReport() string {
	logical, _ := cpu.Counts(true)
	vm, err := mem.VirtualMemory()
	if err != nil {
		return fmt.Sprintf("cpus=%d", logical)
	}
	return fmt.Sprintf("cpus=%d mem=%s free=%s", logical, FormatBytes(vm.Total), FormatBytes(vm.Available))
}

// GetBestH264Encoder picks a hardware H.264 encoder when ffmpeg has one.
// Приоритеты: VideoToolbox (macOS), NVENC (NVIDIA), затем libx264.
func GetBestH264Encoder(ctx context.Context, r Runner) string {
	var out bytes.Buffer
	if err := r.Run(ctx, "ffmpeg", []string{"-hide_banner", "-encoders"}, &out); err != nil {
		return "libx264"
	}
	listing := out.String()
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(listing, name) {
			return name
		}
	}
	return "libx264"
}

// DefaultQuality maps an encoder to its usual quality knob value.
func DefaultQuality(encoder string) int {
	switch encoder {
	case "h264_videotoolbox":
		return 75 // битрейт = Q*100 кбит/с
	case "h264_nvenc":
		return 28
	default:
		return 23
	}
}

// QualityArgs turns quality into encoder-specific ffmpeg flags.
func QualityArgs(encoder string, quality int) []string {
	switch encoder {
	case "h264_videotoolbox":
		// VideoToolbox не везде поддерживает -q:v, используем битрейт
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	default:
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}
