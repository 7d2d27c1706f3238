package probe

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/psantana5/svcguard/pkg/models"
)

const mb = 1024 * 1024

// SampleResult carries one resource sample plus its threshold
// classification and whether the aux pool was restarted as a side
// effect.
type SampleResult struct {
	Sample       models.MetricSample
	Report       models.ResourceReport
	AuxRestarted bool
}

// SampleResources reads system memory, disk usage, service RSS, and the
// auxiliary pool's aggregate RSS, classifying each against the
// configured warn/critical thresholds. A critical breach on the aux
// pool kills just that subprocess group so the service can respawn it;
// this is deliberately not routed through the escalation cooldown
// because the blast radius is a child pool, not the service.
func (p *Prober) SampleResources(ctx context.Context) (SampleResult, error) {
	var res SampleResult

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to read system memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, p.cfg.InstallDir)
	if err != nil {
		// Install dir may not exist yet; fall back to root
		du, err = disk.UsageWithContext(ctx, "/")
		if err != nil {
			return res, fmt.Errorf("failed to read disk usage: %w", err)
		}
	}

	serviceRSS := p.serviceRSSMB(ctx)
	auxRSS := p.auxPoolRSSMB(ctx)

	res.Sample = models.MetricSample{
		TimestampSec: time.Now().Unix(),
		MemUsedPct:   vm.UsedPercent,
		MemAvailMB:   float64(vm.Available) / mb,
		DiskUsedPct:  du.UsedPercent,
		ServiceRSSMB: serviceRSS,
		AuxProcMB:    auxRSS,
	}

	res.Report = p.classify(res.Sample)

	if auxRSS >= p.cfg.AuxMemCritMB && p.cfg.AuxMemCritMB > 0 {
		if err := p.restartAuxPool(ctx); err != nil {
			p.log.Warn("aux pool cleanup failed", map[string]interface{}{"error": err.Error()})
		} else {
			res.AuxRestarted = true
			p.log.Info("aux pool restarted after critical memory breach",
				map[string]interface{}{"aux_rss_mb": auxRSS})
		}
	}

	return res, nil
}

func (p *Prober) classify(s models.MetricSample) models.ResourceReport {
	var r models.ResourceReport

	check := func(name string, value, warn, crit float64, unit string) {
		if crit > 0 && value >= crit {
			r.Criticals = append(r.Criticals, fmt.Sprintf("%s %.1f%s >= critical %.1f%s", name, value, unit, crit, unit))
		} else if warn > 0 && value >= warn {
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s %.1f%s >= warn %.1f%s", name, value, unit, warn, unit))
		}
	}

	check("system memory", s.MemUsedPct, p.cfg.MemWarnPct, p.cfg.MemCritPct, "%")
	check("disk", s.DiskUsedPct, p.cfg.DiskWarnPct, p.cfg.DiskCritPct, "%")
	check("service rss", s.ServiceRSSMB, p.cfg.ServiceRSSWarnMB, p.cfg.ServiceRSSCritMB, "MB")
	check("aux pool rss", s.AuxProcMB, p.cfg.AuxMemWarnMB, p.cfg.AuxMemCritMB, "MB")

	return r
}

// findProcess returns the pid of the first process whose name or
// cmdline contains name, skipping the watchdog itself.
func findProcess(ctx context.Context, name string) (int32, *process.Process) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, nil
	}
	for _, proc := range procs {
		pname, err := proc.NameWithContext(ctx)
		if err == nil && strings.Contains(pname, name) {
			return proc.Pid, proc
		}
		cmdline, err := proc.CmdlineWithContext(ctx)
		if err == nil && cmdline != "" && strings.Contains(cmdline, name) &&
			!strings.Contains(cmdline, "svcguard") {
			return proc.Pid, proc
		}
	}
	return 0, nil
}

func (p *Prober) serviceRSSMB(ctx context.Context) float64 {
	_, proc := findProcess(ctx, p.cfg.ServiceName)
	if proc == nil {
		return 0
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil || info == nil {
		return 0
	}
	return float64(info.RSS) / mb
}

// auxPoolRSSMB sums resident memory across every process matching the
// auxiliary pool pattern.
func (p *Prober) auxPoolRSSMB(ctx context.Context) float64 {
	matcher, err := regexp.Compile(p.cfg.AuxProcessPattern)
	if err != nil {
		p.log.Warn("invalid aux process pattern", map[string]interface{}{"pattern": p.cfg.AuxProcessPattern})
		return 0
	}

	var total float64
	for _, proc := range p.auxProcesses(ctx, matcher) {
		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil || info == nil {
			continue
		}
		total += float64(info.RSS) / mb
	}
	return total
}

func (p *Prober) auxProcesses(ctx context.Context, matcher *regexp.Regexp) []*process.Process {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil
	}
	var matched []*process.Process
	for _, proc := range procs {
		pname, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if matcher.MatchString(pname) {
			matched = append(matched, proc)
		}
	}
	return matched
}

// restartAuxPool kills the matched subprocess group. The service
// respawns its own browser workers on demand.
func (p *Prober) restartAuxPool(ctx context.Context) error {
	matcher, err := regexp.Compile(p.cfg.AuxProcessPattern)
	if err != nil {
		return fmt.Errorf("invalid aux process pattern: %w", err)
	}
	procs := p.auxProcesses(ctx, matcher)
	if len(procs) == 0 {
		return nil
	}
	var lastErr error
	for _, proc := range procs {
		if err := proc.TerminateWithContext(ctx); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
