package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SqliteOptions)(nil)

// SqliteOptions contains configuration for the on-disk history database.
type SqliteOptions struct {
	// Path is the sqlite database file location.
	Path string `json:"path" mapstructure:"path"`

	// RetentionDays controls how long persisted rows are kept before the
	// daily cleanup sweep deletes them. 0 disables the sweep.
	RetentionDays int `json:"retention-days" mapstructure:"retention-days"`
}

// NewSqliteOptions creates a SqliteOptions object with default parameters.
func NewSqliteOptions() *SqliteOptions {
	return &SqliteOptions{
		Path:          "/var/lib/pumpgate/pump.db",
		RetentionDays: 30,
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *SqliteOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errors := []error{}

	if o.Path == "" {
		errors = append(errors, fmt.Errorf("sqlite path is required"))
	}
	if o.RetentionDays < 0 {
		errors = append(errors, fmt.Errorf("sqlite retention-days must not be negative"))
	}

	return errors
}

// AddFlags adds flags related to the history database to the specified FlagSet.
func (o *SqliteOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Path, "sqlite.path", o.Path, "Path to the sqlite history database file.")
	fs.IntVar(&o.RetentionDays, "sqlite.retention-days", o.RetentionDays, "Days to keep persisted history rows (0 disables cleanup).")
}
