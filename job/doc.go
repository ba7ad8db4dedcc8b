// Package job defines the job envelope, its wire encoding, handler
// descriptors and the handler registry.
//
// # Envelope
//
// An [Envelope] is the unit of work carried by a broker message. It names
// the handler [Target] (a type plus an entry point), carries the argument
// mapping and the metadata needed to rebuild a retry:
//
//	{"class":["mailer","execute"],"data":{"to":"a@b.c"},"requeueOptions":{"config":"default","priority":null,"queue":"default"}}
//
// Envelopes published by older producers may carry the arguments as the
// first element of a legacy "args" list instead of "data". [Envelope.Arguments]
// and [Envelope.Argument] hide the difference from handlers.
//
// The attempt counter is not part of the body. It travels as the
// "attempts" broker message property and is copied into
// [Envelope.Attempts] by the worker before the handler runs.
//
// # Handlers
//
// A [Handler] processes an envelope and returns a [Result]. Handlers are
// registered on a [Registry] under a type name and an entry point:
//
//	reg := job.NewRegistry()
//	reg.Register("mailer", job.HandlerFunc(sendMail), job.WithMaxAttempts(5))
//
// Typed handlers decode the argument mapping into a struct:
//
//	var Welcome = job.NewDefinition("welcome", func(ctx context.Context, in WelcomeInput) error {
//	    return mailer.Send(ctx, in.To)
//	}, job.WithUnique())
//	job.RegisterDefinition(reg, Welcome)
package job
