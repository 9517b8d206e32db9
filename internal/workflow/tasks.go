package workflow

import "github.com/callum/drover/internal/scheduler"

// Tasks builds the task registry for this run. Dependencies are declared
// depth-first, left to right; the scheduler guarantees each task runs at
// most once. The default task is the full pipeline, with deployment
// included only when the configuration asks for it.
func (wf *Context) Tasks() *scheduler.Registry {
	reg := scheduler.NewRegistry()

	reg.MustAdd(scheduler.Task{
		Name: "sanitize-git",
		Doc:  "Make sure the merge branch is present locally",
		Body: wf.sanitizeGit,
	})
	reg.MustAdd(scheduler.Task{
		Name: "setup-env",
		Doc:  "Create the test environment if it does not exist yet",
		Body: wf.setupEnv,
	})
	reg.MustAdd(scheduler.Task{
		Name: "install-requirements",
		Doc:  "Install the tool requirements into the test environment",
		Deps: []string{"setup-env"},
		Body: wf.installRequirements,
	})
	reg.MustAdd(scheduler.Task{
		Name: "write-version",
		Doc:  "Render version files from the git tag",
		Body: wf.writeVersion,
	})
	reg.MustAdd(scheduler.Task{
		Name: "lint-static",
		Doc:  "Run static linters against the source",
		Deps: []string{"install-requirements", "sanitize-git", "write-version"},
		Body: wf.lintStatic,
	})
	reg.MustAdd(scheduler.Task{
		Name: "build-inplace",
		Doc:  "Build packages in place and write the activate script",
		Deps: []string{"install-requirements", "sanitize-git", "write-version"},
		Body: wf.buildInplace,
	})
	reg.MustAdd(scheduler.Task{
		Name: "test-inplace",
		Doc:  "Run the test suites against the in-place build",
		Deps: []string{"build-inplace"},
		Body: wf.testInplace,
	})
	reg.MustAdd(scheduler.Task{
		Name: "lint-dynamic",
		Doc:  "Run linters that need the in-place build",
		Deps: []string{"build-inplace"},
		Body: wf.lintDynamic,
	})
	reg.MustAdd(scheduler.Task{
		Name: "quality",
		Doc:  "Run all lint and test tasks",
		Deps: []string{"lint-static", "build-inplace", "test-inplace", "lint-dynamic"},
	})
	reg.MustAdd(scheduler.Task{
		Name: "build-packages",
		Doc:  "Build distributable packages",
		Deps: []string{"install-requirements", "write-version"},
		Body: wf.buildPackages,
	})
	reg.MustAdd(scheduler.Task{
		Name: "deploy",
		Doc:  "Upload packages to their distribution channels",
		Deps: []string{"install-requirements", "build-packages"},
		Body: wf.deploy,
	})
	reg.MustAdd(scheduler.Task{
		Name: "nuclear",
		Doc:  "Remove the test environment and every untracked file",
		Deps: []string{"setup-env"},
		Body: wf.nuclear,
	})

	robot := scheduler.Task{
		Name:    "robot",
		Doc:     "Run the full pipeline",
		Deps:    []string{"quality"},
		Default: true,
	}
	if wf.Cfg.Deploy {
		robot.Deps = append(robot.Deps, "deploy")
	}
	reg.MustAdd(robot)

	return reg
}
