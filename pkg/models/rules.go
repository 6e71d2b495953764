package models

// RuleFile is one alerting-rule YAML file in the rules repository.
type RuleFile struct {
	Groups []RuleGroup `yaml:"groups" json:"groups"`
}

// RuleGroup is a named group of alerting rules.
type RuleGroup struct {
	Name  string `yaml:"name" json:"name"`
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Rule is one alerting rule. FilePath and Category are filled in while
// scanning and never written back to YAML.
type Rule struct {
	Alert       string            `yaml:"alert,omitempty" json:"alert"`
	Expr        string            `yaml:"expr" json:"expr"`
	For         string            `yaml:"for,omitempty" json:"for,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`

	FilePath string `yaml:"-" json:"file_path,omitempty"`
	Category string `yaml:"-" json:"category,omitempty"`
}
