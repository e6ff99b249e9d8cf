package commands

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leapstack-labs/trainlaunch/internal/cli/output"
	"github.com/leapstack-labs/trainlaunch/internal/training"
)

// Check statuses.
const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// DoctorOptions holds options for the doctor command.
type DoctorOptions struct {
	SkipImports bool
	Timeout     time.Duration
}

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	opts := &DoctorOptions{}
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host and the training runtime",
		Long: `Report on the machine and on everything training depends on:

- Host: OS, CPU and memory
- Runtime: the resolved base directory and its python/ and lib/ (bin/) folders
- Interpreter: which Python is used
- Imports: whether torch, CUDA and the framework import in that interpreter

Output adapts to environment:
  - Terminal: Styled output with colors
  - Piped/Scripted: Markdown format
  - JSON: Machine-readable format`,
		Example: `  # Full check
  trainlaunch doctor

  # Skip importing torch
  trainlaunch doctor --skip-imports -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipImports, "skip-imports", false, "Do not start the interpreter to check runtime imports")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 60*time.Second, "Time limit for the runtime import check")
	cmd.Flags().String("python", "", "Python interpreter (default: python3 or python on PATH)")

	return cmd
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Host    HostInfo                 `json:"host"`
	Imports *training.RuntimeImports `json:"imports,omitempty"`
	Checks  []DoctorCheck            `json:"checks"`
}

// HostInfo holds host facts.
type HostInfo struct {
	OS          string `json:"os"`
	Arch        string `json:"arch"`
	Platform    string `json:"platform,omitempty"`
	CPUModel    string `json:"cpu_model,omitempty"`
	LogicalCPUs int    `json:"logical_cpus"`
	MemoryTotal uint64 `json:"memory_total"`
	MemoryFree  uint64 `json:"memory_available"`
}

// DoctorCheck is a single check result.
type DoctorCheck struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

// report collects results from concurrent checks.
type report struct {
	mu  sync.Mutex
	out DoctorOutput
}

func (rep *report) add(name, status, detail string) {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	rep.out.Checks = append(rep.out.Checks, DoctorCheck{Name: name, Status: status, Detail: detail})
}

func runDoctor(cmd *cobra.Command, opts *DoctorOptions) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	r := cc.Renderer
	rt := cc.Env.Runtime
	rep := &report{}

	g, ctx := errgroup.WithContext(cmd.Context())

	g.Go(func() error {
		info, err := hostFacts(ctx)
		if err != nil {
			cc.Logger.Debug("host facts incomplete", "error", err)
		}
		rep.mu.Lock()
		rep.out.Host = info
		rep.mu.Unlock()
		return nil
	})

	g.Go(func() error {
		for _, d := range []struct{ name, path string }{
			{"Runtime packages", rt.Layout.PythonDir},
			{"Runtime libraries", rt.Layout.LibDir},
		} {
			if dirExists(d.path) {
				rep.add(d.name, StatusOK, d.path)
			} else {
				rep.add(d.name, StatusWarn, d.path+" not found")
			}
		}
		return nil
	})

	g.Go(func() error {
		interp, err := training.FindInterpreter(cc.Cfg.Python)
		if err != nil {
			rep.add("Interpreter", StatusFail, err.Error())
			return nil
		}
		rep.add("Interpreter", StatusOK, interp)
		if opts.SkipImports {
			return nil
		}

		pctx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		imports, err := training.CheckImports(pctx, interp, rt.Env.Environ())
		if err != nil {
			rep.add("Runtime imports", StatusFail, err.Error())
			return nil
		}
		rep.mu.Lock()
		rep.out.Imports = imports
		rep.mu.Unlock()
		addImportChecks(rep, imports)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	sortChecks(rep.out.Checks)

	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(rep.out)
	default:
		renderDoctor(r, &rep.out)
		return nil
	}
}

func hostFacts(ctx context.Context) (HostInfo, error) {
	info := HostInfo{OS: runtime.GOOS, Arch: runtime.GOARCH}
	var errs []string

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		info.LogicalCPUs = n
	} else {
		info.LogicalCPUs = runtime.NumCPU()
		errs = append(errs, err.Error())
	}
	if cpus, err := cpu.InfoWithContext(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemoryTotal = vm.Total
		info.MemoryFree = vm.Available
	} else {
		errs = append(errs, err.Error())
	}
	if h, err := host.InfoWithContext(ctx); err == nil {
		info.Platform = strings.TrimSpace(h.Platform + " " + h.PlatformVersion)
	}

	if len(errs) > 0 {
		return info, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return info, nil
}

func addImportChecks(rep *report, p *training.RuntimeImports) {
	if p.TorchError != "" {
		rep.add("Torch", StatusFail, p.TorchError)
	} else {
		rep.add("Torch", StatusOK, p.Torch)
		if p.CUDAAvailable {
			rep.add("CUDA", StatusOK, p.CUDAVersion)
		} else {
			rep.add("CUDA", StatusWarn, "not available, training will use the CPU")
		}
	}
	if p.UltralyticsError != "" {
		rep.add("Framework", StatusFail, p.UltralyticsError)
	} else {
		rep.add("Framework", StatusOK, "ultralytics "+p.Ultralytics)
	}
}

// checkOrder fixes the display order independent of completion order.
var checkOrder = []string{"Runtime packages", "Runtime libraries", "Interpreter", "Runtime imports", "Torch", "CUDA", "Framework"}

func sortChecks(checks []DoctorCheck) {
	rank := make(map[string]int, len(checkOrder))
	for i, name := range checkOrder {
		rank[name] = i
	}
	sort.SliceStable(checks, func(i, j int) bool {
		return rank[checks[i].Name] < rank[checks[j].Name]
	})
}

func renderDoctor(r *output.Renderer, out *DoctorOutput) {
	titleCaser := cases.Title(language.English)

	r.Header(1, "Training Runtime Report")
	r.Println("")

	r.Header(2, "Host")
	h := out.Host
	r.KeyValue("OS", fmt.Sprintf("%s/%s %s", h.OS, h.Arch, h.Platform))
	if h.CPUModel != "" {
		r.KeyValue("CPU", fmt.Sprintf("%s (%d logical)", h.CPUModel, h.LogicalCPUs))
	} else {
		r.KeyValue("CPU", fmt.Sprintf("%d logical", h.LogicalCPUs))
	}
	if h.MemoryTotal > 0 {
		r.KeyValue("Memory", fmt.Sprintf("%s available of %s", humanize.IBytes(h.MemoryFree), humanize.IBytes(h.MemoryTotal)))
	}
	r.Println("")

	r.Header(2, "Checks")
	rows := make([][]string, 0, len(out.Checks))
	failed := 0
	for _, c := range out.Checks {
		if c.Status == StatusFail {
			failed++
		}
		rows = append(rows, []string{c.Name, titleCaser.String(c.Status), c.Detail})
	}
	r.Table([]string{"Check", "Status", "Detail"}, rows)

	if failed == 0 {
		r.Success("Ready to train")
		return
	}
	r.Warning(fmt.Sprintf("%d check(s) failed", failed))
}
