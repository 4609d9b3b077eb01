// Package abtestengine runs two-variant layout experiments inside the
// experimentation context.
//
// Each campaign keeps a Beta posterior per variant. First page views are
// assigned by a pluggable policy (Thompson sampling by default) and stay
// sticky for the user's lifetime; binary outcomes update only the assigned
// variant's posterior. Stickiness and model updates are enforced by the store
// adapters (memory, postgres, badger) rather than in-process locks.
package abtestengine
