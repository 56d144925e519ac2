// Package prompts builds the system instruction sent with every reasoning
// step.
//
// Prompt text is Go code rather than config files because it is program
// logic: the step format it describes is what the agent's parser accepts,
// and tests pin the two together. Users customise the role and the reply
// rules through config.yaml; the format section is fixed.
package prompts
