package logger

import (
	"time"

	"github.com/fatih/color"

	"github.com/callum/drover/internal/scheduler"
)

// TaskStart implements scheduler.Logger.
func (cl *ConsoleLogger) TaskStart(run *scheduler.Run, task string) {
	cl.write(levelInfo, cl.paint(color.New(color.FgGreen, color.Bold), "TASK "+task))
}

// TaskDone implements scheduler.Logger.
func (cl *ConsoleLogger) TaskDone(run *scheduler.Run, task string, d time.Duration) {
	cl.write(levelDebug, "task "+task+" completed in "+d.Round(time.Millisecond).String())
}
