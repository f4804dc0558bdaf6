package scenario

// Scenario is a scripted event-loop program together with the trace it is
// expected to produce
type Scenario struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Steps       []Step   `yaml:"steps"`
	Expect      []string `yaml:"expect,omitempty"`
}

// Step is one statement of a scenario. Exactly one field is set.
type Step struct {
	Log       *string    `yaml:"log,omitempty"`
	Microtask []Step     `yaml:"microtask,omitempty"`
	Timeout   *Timer     `yaml:"timeout,omitempty"`
	Interval  *Interval  `yaml:"interval,omitempty"`
	Cron      *CronTimer `yaml:"cron,omitempty"`
	Chain     [][]Step   `yaml:"chain,omitempty"`
	Async     [][]Step   `yaml:"async,omitempty"`
	Throw     *string    `yaml:"throw,omitempty"`
	Reject    *Rejection `yaml:"reject,omitempty"`
	Cancel    *string    `yaml:"cancel,omitempty"`
	All       *AllOf     `yaml:"all,omitempty"`
	Await     *Await     `yaml:"await,omitempty"`
}

// Timer runs steps once after Delay milliseconds
type Timer struct {
	Name  string `yaml:"name,omitempty"`
	Delay int64  `yaml:"delay"`
	Steps []Step `yaml:"steps"`
}

// Interval runs steps every Every milliseconds, Times times (0 = until
// cancelled)
type Interval struct {
	Name  string `yaml:"name,omitempty"`
	Every int64  `yaml:"every"`
	Times int    `yaml:"times"`
	Steps []Step `yaml:"steps"`
}

// CronTimer runs steps on a cron schedule evaluated on the virtual clock
type CronTimer struct {
	Name     string `yaml:"name,omitempty"`
	Schedule string `yaml:"schedule"`
	Times    int    `yaml:"times"`
	Steps    []Step `yaml:"steps"`
}

// Rejection creates a rejected promise, optionally handled by Catch
type Rejection struct {
	Reason string `yaml:"reason"`
	Catch  []Step `yaml:"catch,omitempty"`
}

// AllOf starts one timer-backed promise per task and runs Then once every
// one of them resolved
type AllOf struct {
	Tasks []Timer `yaml:"tasks"`
	Then  []Step  `yaml:"then,omitempty"`
}

// Await ends an async block: the function waits on a promise before the
// next block runs. Without reject or delay the promise is already fulfilled.
type Await struct {
	Reject *string `yaml:"reject,omitempty"`
	Delay  *int64  `yaml:"delay,omitempty"`

	// Catch runs when the awaited promise rejects, like a try/catch around
	// the await
	Catch []Step `yaml:"catch,omitempty"`
}

// kinds returns the names of the fields set on the step
func (s Step) kinds() []string {
	var kinds []string
	if s.Log != nil {
		kinds = append(kinds, "log")
	}
	if s.Microtask != nil {
		kinds = append(kinds, "microtask")
	}
	if s.Timeout != nil {
		kinds = append(kinds, "timeout")
	}
	if s.Interval != nil {
		kinds = append(kinds, "interval")
	}
	if s.Cron != nil {
		kinds = append(kinds, "cron")
	}
	if s.Chain != nil {
		kinds = append(kinds, "chain")
	}
	if s.Async != nil {
		kinds = append(kinds, "async")
	}
	if s.Throw != nil {
		kinds = append(kinds, "throw")
	}
	if s.Reject != nil {
		kinds = append(kinds, "reject")
	}
	if s.Cancel != nil {
		kinds = append(kinds, "cancel")
	}
	if s.All != nil {
		kinds = append(kinds, "all")
	}
	if s.Await != nil {
		kinds = append(kinds, "await")
	}
	return kinds
}
