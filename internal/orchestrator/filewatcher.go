package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// reportFile is the on-disk shape some subprocess providers write instead
// of calling report_to_parent (spec §4.4 "File-watcher fallback").
type reportFile struct {
	TaskID              string   `json:"taskId"`
	Summary             string   `json:"summary"`
	FilesModified       []string `json:"filesModified"`
	VerificationResults string   `json:"verificationResults"`
	Success             bool     `json:"success"`
}

// startFileWatcher watches cwd for .report_to_parent_*.json files written
// by providers that don't call the report_to_parent tool directly. It is
// best-effort: a provider whose cwd can't be watched (missing directory,
// platform limits) still gets the auto-report settlement fallback.
func (o *Orchestrator) startFileWatcher(childAgentID, cwd string) {
	if cwd == "" {
		return
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		o.log.Warn(context.Background(), "orchestrator: file watcher unavailable", "agent_id", childAgentID, "err", err)
		return
	}
	if err := w.Add(cwd); err != nil {
		o.log.Warn(context.Background(), "orchestrator: could not watch cwd", "agent_id", childAgentID, "cwd", cwd, "err", err)
		_ = w.Close()
		return
	}

	o.mu.Lock()
	o.watchers[childAgentID] = w
	o.mu.Unlock()

	go o.runFileWatcher(childAgentID, w)
}

func (o *Orchestrator) runFileWatcher(childAgentID string, w *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasPrefix(name, ".report_to_parent_") || !strings.HasSuffix(name, ".json") {
				continue
			}
			o.handleReportFile(childAgentID, ev.Name)
			return
		case _, ok := <-w.Errors:
			if !ok {
				return
			}
		}
	}
}

func (o *Orchestrator) handleReportFile(childAgentID, path string) {
	ctx := context.Background()
	data, err := os.ReadFile(path)
	if err != nil {
		o.log.Warn(ctx, "orchestrator: could not read report file", "path", path, "err", err)
		return
	}
	var rf reportFile
	if err := json.Unmarshal(data, &rf); err != nil {
		o.log.Warn(ctx, "orchestrator: malformed report file", "path", path, "err", err)
		return
	}
	_ = os.Remove(path)
	o.stopFileWatcher(childAgentID)

	o.mu.Lock()
	rec, ok := o.children[childAgentID]
	o.mu.Unlock()
	if !ok {
		return
	}
	report := Report{
		TaskID:              rec.TaskID,
		Summary:             rf.Summary,
		FilesModified:       rf.FilesModified,
		VerificationResults: rf.VerificationResults,
		Success:             rf.Success,
	}
	if o.reports != nil {
		if err := o.reports.ReportToParent(ctx, childAgentID, report); err != nil {
			o.log.Error(ctx, "orchestrator: report file forwarding failed", "agent_id", childAgentID, "err", err)
		}
		return
	}
	o.HandleReportSubmitted(ctx, childAgentID, report)
}

func (o *Orchestrator) stopFileWatcher(childAgentID string) {
	o.mu.Lock()
	w, ok := o.watchers[childAgentID]
	delete(o.watchers, childAgentID)
	o.mu.Unlock()
	if ok {
		_ = w.Close()
	}
}
