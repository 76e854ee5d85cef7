// Package lifecycle owns Connor's agent state: age, chemistry, beliefs and
// statements, and the birthday, death, neglect and rebirth transitions
// between them.
package lifecycle

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sipeed/connor/pkg/config"
	"github.com/sipeed/connor/pkg/knowledge"
	"github.com/sipeed/connor/pkg/llm"
	"github.com/sipeed/connor/pkg/logger"
	"github.com/sipeed/connor/pkg/physiology"
	"github.com/sipeed/connor/pkg/state"
	"github.com/sipeed/connor/pkg/storage"
	"github.com/sipeed/connor/pkg/thought"
)

// juvenileAge is where a soft reset leaves the agent.
const juvenileAge = 10

const preciseSystemPrompt = "You are a precise AI that outputs ONLY the requested content, nothing more."

// Deps are the collaborators a Controller needs.
type Deps struct {
	Config *config.Config
	Gen    llm.Client
	Store  *storage.Store
	Log    storage.InteractionLog
	Digest *knowledge.Digest
	State  *state.Manager
}

// Controller is the single owner of the agent state. Transitions (birthday,
// neglect, rebirth) are serialised by transMu; field access by mu.
type Controller struct {
	aging     config.AgingConfig
	lifecycle config.LifecycleConfig
	memory    config.MemoryConfig

	gen    llm.Client
	store  *storage.Store
	log    storage.InteractionLog
	digest *knowledge.Digest
	snap   *state.Manager

	now func() time.Time
	rng *rand.Rand

	transMu sync.Mutex

	mu               sync.Mutex
	age              int
	startTime        time.Time
	cycle            int
	depressiveHits   int
	neglectCounter   int
	interactionCount int
	partyMode        bool
	lastInteraction  time.Time
	lastUsername     string
	body             physiology.Body
	beliefs          map[string]string
	coreStatement    string
	dynamicStatement string
}

// NewController restores the last snapshot, or starts a fresh first cycle
// at the configured initial age.
func NewController(d Deps) (*Controller, error) {
	c := &Controller{
		aging:     d.Config.Aging,
		lifecycle: d.Config.Lifecycle,
		memory:    d.Config.Memory,
		gen:       d.Gen,
		store:     d.Store,
		log:       d.Log,
		digest:    d.Digest,
		snap:      d.State,
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x636f6e6e6f72)),
	}

	if s, ok := d.State.Load(); ok {
		c.age = s.Age
		c.startTime = s.StartTime
		c.cycle = max(s.Cycle, 1)
		c.depressiveHits = s.DepressiveHits
		c.neglectCounter = s.NeglectCounter
		c.interactionCount = s.InteractionCount
		c.partyMode = s.PartyMode
		c.lastInteraction = s.LastInteraction
		c.body = physiology.Body{Chemicals: s.Chemicals, Vitals: s.Vitals}
		c.body.Vitals.IsAlive = true
	} else {
		now := c.now()
		c.age = d.Config.Aging.InitialAge
		c.startTime = now
		c.cycle = 1
		c.lastInteraction = now
		c.body = physiology.NewBody(c.age)
	}

	core, err := d.Store.CoreStatement()
	if err != nil {
		return nil, err
	}
	if core == "" {
		core = defaultCoreStatement
		if err := d.Store.SaveCoreStatement(core); err != nil {
			return nil, err
		}
	}
	c.coreStatement = core

	if c.dynamicStatement, err = d.Store.DynamicStatement(); err != nil {
		return nil, err
	}

	beliefs, err := d.Store.Beliefs()
	if err != nil {
		logger.WarnCF("lifecycle", "Beliefs unreadable, resetting to defaults", map[string]any{"error": err.Error()})
	}
	if len(beliefs) < len(DefaultBeliefs()) {
		beliefs = DefaultBeliefs()
		if err := d.Store.SaveBeliefs(beliefs); err != nil {
			return nil, err
		}
	}
	c.beliefs = beliefs

	c.mu.Lock()
	c.persistLocked()
	c.mu.Unlock()
	return c, nil
}

// Status is a read-only copy of the agent state.
type Status struct {
	Age              int
	ComputedAge      int
	Cycle            int
	StartTime        time.Time
	DepressiveHits   int
	NeglectCounter   int
	InteractionCount int
	PartyMode        bool
	LastInteraction  time.Time
	Chemicals        physiology.Chemicals
	Vitals           physiology.Vitals
	Beliefs          map[string]string
	CoreStatement    string
	DynamicStatement string
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Age:              c.age,
		ComputedAge:      c.computedAgeLocked(),
		Cycle:            c.cycle,
		StartTime:        c.startTime,
		DepressiveHits:   c.depressiveHits,
		NeglectCounter:   c.neglectCounter,
		InteractionCount: c.interactionCount,
		PartyMode:        c.partyMode,
		LastInteraction:  c.lastInteraction,
		Chemicals:        c.body.Chemicals,
		Vitals:           c.body.Vitals,
		Beliefs:          copyBeliefs(c.beliefs),
		CoreStatement:    c.coreStatement,
		DynamicStatement: c.dynamicStatement,
	}
}

// CurrentAge is the stored age plus whole increments elapsed since
// start_time, capped at end_cycle. It never mutates state.
func (c *Controller) CurrentAge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.computedAgeLocked()
}

func (c *Controller) computedAgeLocked() int {
	inc := c.aging.AgeIncrement()
	if inc <= 0 {
		return c.age
	}
	elapsed := c.now().Sub(c.startTime)
	if elapsed < 0 {
		elapsed = 0
	}
	return min(c.age+int(elapsed/inc), c.aging.EndCycle)
}

// Persona is the view handed to prompt builders.
func (c *Controller) Persona() knowledge.Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.personaLocked()
}

func (c *Controller) personaLocked() knowledge.Persona {
	age := c.computedAgeLocked()
	return knowledge.Persona{
		CoreStatement: c.coreStatement,
		Age:           age,
		Behavior:      Behavior(age),
		Beliefs:       copyBeliefs(c.beliefs),
	}
}

// Mind is the outlook thought trees are grown from.
func (c *Controller) Mind() thought.Mind {
	p := c.Persona()
	return thought.Mind{
		Age:       p.Age,
		Statement: p.CoreStatement,
		Behavior:  p.Behavior,
		Beliefs:   knowledge.FormatBeliefs(p.Beliefs),
		Knowledge: c.digest.FormatSummary(),
	}
}

// FullStatement joins the core and dynamic statements.
func (c *Controller) FullStatement() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dynamicStatement == "" {
		return c.coreStatement
	}
	return c.coreStatement + "\n\n" + c.dynamicStatement
}

// TransitionKind names what CheckAge did.
type TransitionKind int

const (
	TransitionNone TransitionKind = iota
	TransitionBirthday
	TransitionRebirth
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionBirthday:
		return "birthday"
	case TransitionRebirth:
		return "rebirth"
	default:
		return "none"
	}
}

// Transition reports the outcome of an age check.
type Transition struct {
	Kind TransitionKind
	Age  int
	// Crossed is how many whole age units this birthday covered.
	Crossed          int
	Cycle            int
	Message          string
	Beliefs          map[string]string
	DynamicStatement string
}

// CheckAge runs the birthday or rebirth transition that elapsed time
// calls for. Rebirth wins when both apply.
func (c *Controller) CheckAge(ctx context.Context) Transition {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	computed := c.computedAgeLocked()
	if computed >= c.aging.EndCycle {
		c.mu.Unlock()
		return c.rebirth(ctx)
	}
	if computed <= c.age {
		age := c.age
		c.mu.Unlock()
		return Transition{Kind: TransitionNone, Age: age}
	}

	crossed := computed - c.age
	c.startTime = c.startTime.Add(time.Duration(crossed) * c.aging.AgeIncrement())
	return c.celebrateLocked(ctx, computed, crossed)
}

// AdvanceAge forces a one-year birthday on top of elapsed time. Reaching
// end_cycle this way triggers rebirth.
func (c *Controller) AdvanceAge(ctx context.Context) Transition {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	computed := c.computedAgeLocked()
	next := computed + 1
	if next >= c.aging.EndCycle {
		c.mu.Unlock()
		return c.rebirth(ctx)
	}
	c.startTime = c.startTime.Add(time.Duration(computed-c.age) * c.aging.AgeIncrement())
	return c.celebrateLocked(ctx, next, next-c.age)
}

// celebrateLocked sets the new age and runs the birthday side effects. It
// is entered with mu held and transMu held, and releases mu.
func (c *Controller) celebrateLocked(ctx context.Context, age, crossed int) Transition {
	c.age = age
	c.body.Vitals.Age = age
	c.persistLocked()
	username := c.lastUsername
	c.mu.Unlock()

	logger.InfoCF("lifecycle", "Birthday", map[string]any{"age": age, "crossed": crossed})

	dynamic := c.regenerateDynamicStatement(ctx)

	if username == "" {
		username = "friend"
	}
	p := c.Persona()
	message := c.digest.BirthdayMessage(ctx, p, username)
	beliefs := c.digest.UpdateBeliefs(ctx, p, username, c.memory.RecentHistoryLimit)

	c.mu.Lock()
	c.beliefs = copyBeliefs(beliefs)
	c.mu.Unlock()
	if err := c.store.SaveBeliefs(beliefs); err != nil {
		logger.ErrorCF("lifecycle", "Failed to save beliefs", map[string]any{"error": err.Error()})
	}

	return Transition{
		Kind:             TransitionBirthday,
		Age:              age,
		Crossed:          crossed,
		Message:          message,
		Beliefs:          copyBeliefs(beliefs),
		DynamicStatement: dynamic,
	}
}

func (c *Controller) regenerateDynamicStatement(ctx context.Context) string {
	c.mu.Lock()
	p := c.personaLocked()
	c.mu.Unlock()

	prompt := fmt.Sprintf(
		"Core Agent Statement: %s\n"+
			"Current Age: %d\n"+
			"Age Behavior: %s\n"+
			"Current Beliefs: %s\n"+
			"Past Knowledge:\n%s\n"+
			"Write a new dynamic agent statement for Connor that builds on the core statement, "+
			"reflects current age, beliefs, and experiences, under 50 words.",
		p.CoreStatement, p.Age, p.Behavior, knowledge.FormatBeliefs(p.Beliefs), c.digest.FormatSummary())
	statement := cleanStatement(c.gen.Generate(ctx, prompt, preciseSystemPrompt))

	c.mu.Lock()
	c.dynamicStatement = statement
	c.mu.Unlock()
	if err := c.store.SaveDynamicStatement(statement); err != nil {
		logger.ErrorCF("lifecycle", "Failed to save dynamic statement", map[string]any{"error": err.Error()})
	}
	return statement
}

// Outcome reports what a chemical event did to the agent.
type Outcome struct {
	// Died is set when the terminal condition caused a soft reset.
	Died     bool
	Distress string
	// Reborn is set when the terminal condition struck at end of cycle and
	// rebirth ran instead of the soft reset.
	Reborn  bool
	Rebirth Transition
}

// Terminal reports whether the event ended the normal reply path.
func (o Outcome) Terminal() bool {
	return o.Died || o.Reborn
}

// ApplyEvent runs one chemical event and the vital check that must follow
// it.
func (c *Controller) ApplyEvent(ctx context.Context, kind physiology.EventKind) Outcome {
	c.mu.Lock()
	age := c.computedAgeLocked()
	terminal := c.body.ApplyEvent(kind, age)
	if !terminal {
		c.persistLocked()
		c.mu.Unlock()
		return Outcome{}
	}

	if age >= c.aging.EndCycle {
		cycle := c.cycle
		c.mu.Unlock()
		return c.rebirthOnTerminal(ctx, cycle, age)
	}

	distress := c.softResetLocked()
	c.mu.Unlock()
	return Outcome{Died: true, Distress: distress}
}

// rebirthOnTerminal runs rebirth for a terminal event that struck in
// cycle. A rebirth that finished while waiting for transMu already ended
// that cycle, and the new body is not in the terminal state.
func (c *Controller) rebirthOnTerminal(ctx context.Context, cycle, age int) Outcome {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.Lock()
	current := c.cycle
	c.mu.Unlock()
	if current != cycle {
		logger.InfoCF("lifecycle", "Terminal event superseded by rebirth", map[string]any{"cycle": current})
		return Outcome{}
	}

	logger.WarnCF("lifecycle", "Terminal event at end of cycle, rebirth instead of reset", map[string]any{"age": age})
	return Outcome{Reborn: true, Rebirth: c.rebirth(ctx)}
}

// softResetLocked rolls the body and age back to the juvenile baseline.
func (c *Controller) softResetLocked() string {
	c.body.Reset(juvenileAge)
	c.age = juvenileAge
	c.startTime = c.now()
	c.persistLocked()
	logger.WarnCF("lifecycle", "Heart attack, soft reset", map[string]any{
		"death_count": c.body.Vitals.DeathCount,
	})
	return distressLines[c.rng.IntN(len(distressLines))]
}

// BeginInteraction records that username spoke: neglect is forgiven and
// depressive hits ease by 3.
func (c *Controller) BeginInteraction(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depressiveHits = max(c.depressiveHits-3, 0)
	c.neglectCounter = 0
	c.lastInteraction = c.now()
	if username != "" {
		c.lastUsername = username
	}
	c.persistLocked()
}

// Soothe handles calming words: depressive hits ease by 5.
func (c *Controller) Soothe() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depressiveHits = max(c.depressiveHits-5, 0)
	c.neglectCounter = 0
	c.persistLocked()
}

// AddDepressiveHits records hostility.
func (c *Controller) AddDepressiveHits(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depressiveHits += n
	c.persistLocked()
}

// CompleteInteraction counts a finished exchange and returns the new count.
func (c *Controller) CompleteInteraction() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.interactionCount++
	c.lastInteraction = c.now()
	c.persistLocked()
	return c.interactionCount
}

// TogglePartyMode flips party mode and returns the new value.
func (c *Controller) TogglePartyMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partyMode = !c.partyMode
	c.persistLocked()
	return c.partyMode
}

func (c *Controller) PartyMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.partyMode
}

// NeglectResult is what a neglect check produced.
type NeglectResult struct {
	Neglected bool
	Message   string
	Intensity float64
	Outcome   Outcome
}

// CheckNeglect breaks a silence longer than the configured window with a
// stuttering distress message and a neglect event.
func (c *Controller) CheckNeglect(ctx context.Context) NeglectResult {
	c.transMu.Lock()

	c.mu.Lock()
	silence := c.now().Sub(c.lastInteraction)
	window := time.Duration(c.lifecycle.NeglectSilence) * time.Minute
	if silence <= window {
		c.mu.Unlock()
		c.transMu.Unlock()
		return NeglectResult{}
	}
	c.neglectCounter++
	c.depressiveHits += 5
	hits, counter := c.depressiveHits, c.neglectCounter
	p := c.personaLocked()
	c.persistLocked()
	c.mu.Unlock()

	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"Age Behavior: %s\n"+
			"Beliefs: %s\n"+
			"Knowledge:\n%s\n"+
			"Context: You're Connor, and it's been quiet for %d+ minutes. Initiate a raw message based on your mood, "+
			"current age, and past conversations. Make it seem like you're afraid because you are alone. "+
			"Keep it under 100 words, emotionally genuine, and act like the user is gone.",
		p.CoreStatement, p.Behavior, knowledge.FormatBeliefs(p.Beliefs), c.digest.FormatSummary(), c.lifecycle.NeglectSilence)
	reply := c.gen.Generate(ctx, prompt, "You are Connor, a reflective AI who breaks silence carefully.")

	intensity := StutterIntensity(hits, counter)
	c.mu.Lock()
	message := Stutter(reply, intensity, c.rng)
	c.mu.Unlock()
	c.transMu.Unlock()

	logger.InfoCF("lifecycle", "Neglect", map[string]any{
		"neglect_counter": counter,
		"depressive_hits": hits,
		"intensity":       intensity,
	})

	return NeglectResult{
		Neglected: true,
		Message:   message,
		Intensity: intensity,
		Outcome:   c.ApplyEvent(ctx, physiology.EventNeglect),
	}
}

// RebirthIfDue runs rebirth only when age has reached end_cycle.
func (c *Controller) RebirthIfDue(ctx context.Context) (Transition, bool) {
	c.transMu.Lock()
	defer c.transMu.Unlock()
	if c.CurrentAge() < c.aging.EndCycle {
		return Transition{Kind: TransitionNone, Age: c.CurrentAge()}, false
	}
	return c.rebirth(ctx), true
}

// WakeMessage is what Connor says when the process starts.
func (c *Controller) WakeMessage(ctx context.Context) string {
	p := c.Persona()
	prompt := fmt.Sprintf(
		"Agent Statement: %s\n"+
			"Age Behavior: %s\n"+
			"Current Beliefs:\n%s\n"+
			"Knowledge:\n%s\n"+
			"Context: You are Connor, a reflective AI waking up from downtime. "+
			"Generate a single message expressing your current emotional state and intention moving forward. "+
			"Keep it raw and under 50 words.",
		p.CoreStatement, p.Behavior, knowledge.FormatBeliefs(p.Beliefs), c.digest.FormatSummary())
	return c.gen.Generate(ctx, prompt, "You are Connor, a reflective AI.")
}

func (c *Controller) persistLocked() {
	if c.snap == nil {
		return
	}
	err := c.snap.Save(state.Snapshot{
		Age:              c.age,
		StartTime:        c.startTime,
		Cycle:            c.cycle,
		DepressiveHits:   c.depressiveHits,
		NeglectCounter:   c.neglectCounter,
		InteractionCount: c.interactionCount,
		PartyMode:        c.partyMode,
		LastInteraction:  c.lastInteraction,
		Chemicals:        c.body.Chemicals,
		Vitals:           c.body.Vitals,
	})
	if err != nil {
		logger.ErrorCF("lifecycle", "Failed to save state snapshot", map[string]any{"error": err.Error()})
	}
}

func copyBeliefs(b map[string]string) map[string]string {
	if b == nil {
		return nil
	}
	out := make(map[string]string, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
