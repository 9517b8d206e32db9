package tool

import (
	"github.com/callum/drover/internal/config"
	"github.com/callum/drover/internal/gitversion"
)

// NeedDeployment decides whether a deploy tool runs for the current version.
// Deployment proceeds only when the artifact-kind flag (deploy_binary or
// deploy_noarch, depending on the tool) is enabled AND the version's deploy
// label is in the tool's allowed label set.
func NeedDeployment(cfg *config.Config, t *Tool, label gitversion.DeployLabel) bool {
	if t.Binary {
		if !cfg.DeployBinary {
			return false
		}
	} else if !cfg.DeployNoarch {
		return false
	}
	return t.DeployLabelSet()[label]
}
