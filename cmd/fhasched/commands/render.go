package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/fhasched/internal/cli/output"
	"github.com/marmos91/fhasched/pkg/api/handlers"
	"github.com/marmos91/fhasched/pkg/fha"
	"github.com/marmos91/fhasched/pkg/workload"
)

// limitString renders a per-file limit where zero means no limit.
func limitString(n int) string {
	if n == 0 {
		return "unlimited"
	}
	return strconv.Itoa(n)
}

func tunablesTable(t fha.Tunables) output.KeyValues {
	var kv output.KeyValues
	kv.Add("enabled", strconv.FormatBool(t.Enabled))
	kv.Add("bin_shift", fmt.Sprintf("%d (%s bins)", t.BinShift, binSize(t.BinShift)))
	kv.Add("max_threads_per_file", limitString(t.MaxThreadsPerFile))
	kv.Add("max_reqs_per_thread", limitString(t.MaxReqsPerThread))
	kv.Add("max_entries", limitString(t.MaxEntries))
	if t.IdleScanLimit == 0 {
		kv.Add("idle_scan_limit", "whole pool")
	} else {
		kv.Add("idle_scan_limit", strconv.Itoa(t.IdleScanLimit))
	}
	return kv
}

func binSize(shift uint) string {
	const units = "KMGTPE"
	if shift < 10 {
		return fmt.Sprintf("%dB", uint64(1)<<shift)
	}
	unit := min(int(shift/10), len(units))
	return fmt.Sprintf("%d%ciB", uint64(1)<<(shift-uint(unit)*10), units[unit-1])
}

// ruleTable lists assignment counts in rule order; rules never taken are
// shown as zero.
func ruleTable(counts map[string]uint64) *output.TableData {
	var total uint64
	for _, n := range counts {
		total += n
	}
	t := output.NewTableData("RULE", "CALLS", "SHARE")
	for _, r := range fha.Rules() {
		n := counts[r.String()]
		t.AddRow(r.String(), strconv.FormatUint(n, 10), percent(n, total))
	}
	return t
}

func percent(n, total uint64) string {
	if total == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

func workerList(ids []int) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = strconv.Itoa(id)
	}
	return strings.Join(s, ",")
}

// tunablesView renders live tunables.
type tunablesView fha.Tunables

func (v tunablesView) Headers() []string { return nil }
func (v tunablesView) Rows() [][]string  { return tunablesTable(fha.Tunables(v)).Rows() }

// simulationView renders a workload report together with the settings that
// produced it.
type simulationView struct {
	Workers  int              `json:"workers" yaml:"workers"`
	Tunables fha.Tunables     `json:"tunables" yaml:"tunables"`
	Workload workload.Config  `json:"workload" yaml:"workload"`
	Report   *workload.Report `json:"report" yaml:"report"`
}

func (v simulationView) Sections() []output.Section {
	r := v.Report

	var summary output.KeyValues
	summary.Add("workers", strconv.Itoa(v.Workers))
	summary.Add("calls", strconv.Itoa(r.Calls))
	summary.Add("errors", strconv.Itoa(r.Errors))
	summary.Add("elapsed", r.Elapsed.Round(time.Microsecond).String())
	summary.Add("throughput", fmt.Sprintf("%.0f calls/s", r.CallsPerSecond()))
	summary.Add("forwarded", fmt.Sprintf("%d (%s)", r.Forwarded, percent(uint64(r.Forwarded), uint64(r.Calls))))
	summary.Add("repeat reads", strconv.Itoa(r.Reads))
	summary.Add("locality hit rate", fmt.Sprintf("%.1f%%", 100*r.LocalityHitRate()))
	summary.Add("entries left", strconv.Itoa(r.EntriesLeft))

	var shape output.KeyValues
	shape.Add("files", strconv.Itoa(v.Workload.Files))
	shape.Add("clients", strconv.Itoa(v.Workload.Clients))
	shape.Add("read ratio", strconv.FormatFloat(v.Workload.ReadRatio, 'f', -1, 64))
	shape.Add("metadata ratio", strconv.FormatFloat(v.Workload.MetadataRatio, 'f', -1, 64))
	shape.Add("io size", v.Workload.IOSize.String())
	shape.Add("service time", v.Workload.ServiceTime.String())
	shape.Add("seed", strconv.FormatInt(v.Workload.Seed, 10))

	workers := output.NewTableData("WORKER", "EXECUTED", "RECEIVED", "FORWARDED")
	for _, w := range r.Workers {
		workers.AddRow(
			strconv.Itoa(w.ID),
			strconv.FormatUint(w.Executed, 10),
			strconv.FormatUint(w.Received, 10),
			strconv.FormatUint(w.Forwarded, 10))
	}

	return []output.Section{
		{Title: "Summary", Table: summary},
		{Title: "Workload", Table: shape},
		{Title: "Tunables", Table: tunablesTable(v.Tunables)},
		{Title: "Assignments", Table: ruleTable(r.Rules)},
		{Title: "Workers", Table: workers},
	}
}

// debugView renders the scheduler statistics dump served at /debug/fha.
type debugView struct {
	*handlers.DebugResponse
}

func (v debugView) Sections() []output.Section {
	st := v.Stats

	var counters output.KeyValues
	counters.Add("entries", strconv.Itoa(st.Entries))
	counters.Add("entries created", strconv.FormatUint(st.EntriesCreated, 10))
	counters.Add("entries removed", strconv.FormatUint(st.EntriesRemoved, 10))
	counters.Add("completes", strconv.FormatUint(st.Completes, 10))
	counters.Add("insert races", strconv.FormatUint(st.InsertRaces, 10))
	counters.Add("table full", strconv.FormatUint(st.TableFull, 10))
	counters.Add("repairs", strconv.FormatUint(st.Repairs, 10))

	entries := output.NewTableData("HANDLE", "READS", "WRITES", "WORKERS")
	for _, e := range v.Entries {
		entries.AddRow(e.Key.String(), strconv.Itoa(e.Reads), strconv.Itoa(e.Writes), workerList(e.Workers))
	}
	entriesTitle := fmt.Sprintf("Entries (%d of %d)", len(v.Entries), v.Total)

	sections := []output.Section{
		{Title: "Tunables", Table: tunablesTable(v.Tunables)},
		{Title: "Counters", Table: counters},
		{Title: "Assignments", Table: ruleTable(st.Assigns)},
		{Title: entriesTitle, Table: entries},
	}

	if v.Pool != nil {
		workers := output.NewTableData("WORKER", "IN FLIGHT", "QUEUED", "EXECUTED", "RECEIVED", "FORWARDED", "LAST OFFSET")
		for _, w := range v.Pool.Workers {
			workers.AddRow(
				strconv.Itoa(w.ID),
				strconv.Itoa(w.InFlight),
				strconv.Itoa(w.Queued),
				strconv.FormatUint(w.Executed, 10),
				strconv.FormatUint(w.Received, 10),
				strconv.FormatUint(w.Forwarded, 10),
				strconv.FormatUint(w.LastOffset, 10))
		}
		title := fmt.Sprintf("Pool (queue depth %d, submitted %d, completed %d)",
			v.Pool.QueueDepth, v.Pool.Submitted, v.Pool.Completed)
		sections = append(sections, output.Section{Title: title, Table: workers})
	}
	return sections
}
