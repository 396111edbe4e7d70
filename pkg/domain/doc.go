/*
Package domain contains the core types shared by the live evaluation pipeline.

It defines what flows between the stages of the pipeline: edit events coming
from the host, evaluation requests sent to the interpreter, and the typed
outcomes the interpreter produces. The package has no I/O and no external
dependencies.

# Key Entities

  - EditEvent: a snapshot of the tracked document after a keystroke, save or close.
  - EvaluationRequest: one immutable "evaluate this text" command.
  - Outcome: a tagged union of everything the interpreter can report.
  - RunRecord: a completed run, as stored by the run journal.
*/
package domain
