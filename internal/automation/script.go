//go:build !no_automation

package automation

// ScriptMeta is the JSON header on the first line of a script file.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	// Accessories lists the accessory names the script acts on. It is
	// informational; handlers still filter with hap.on.
	Accessories []string `json:"accessories,omitempty"`
}

// Script is one automation stored as scripts_dir/<ID>.lua.
type Script struct {
	ID       string     `json:"id"`
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}
