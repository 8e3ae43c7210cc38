package executor

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/devicelab-dev/browser-runner/pkg/command"
	"github.com/devicelab-dev/browser-runner/pkg/core"
	"github.com/devicelab-dev/browser-runner/pkg/element"
	"github.com/devicelab-dev/browser-runner/pkg/locator"
	"github.com/devicelab-dev/browser-runner/pkg/queue"
	"github.com/devicelab-dev/browser-runner/pkg/script"
	"github.com/devicelab-dev/browser-runner/pkg/session"
	"github.com/devicelab-dev/browser-runner/pkg/validator"
)

// dispatch maps a step onto the session API and waits for its outcome.
// Commands of an optional step are queued tolerated: a failure settles them
// with nil instead of being reported, and is returned here.
func (sr *scriptRunner) dispatch(ctx context.Context, step script.Step) (interface{}, error) {
	if !step.Params.Optional {
		return sr.dispatchStep(ctx, step, nil)
	}
	failures := make(chan error, 1)
	data, err := sr.dispatchStep(ctx, step, func(err error) {
		select {
		case failures <- err:
		default:
		}
	})
	select {
	case failure := <-failures:
		return nil, failure
	default:
		return data, err
	}
}

func (sr *scriptRunner) dispatchStep(ctx context.Context, step script.Step, onFailure func(error)) (interface{}, error) {
	s := sr.session
	p := step.Params

	switch step.Command {
	case script.CmdUseCSS:
		s.UseCSS()
		return nil, nil

	case script.CmdUseXPath:
		s.UseXPath()
		return nil, nil

	case script.CmdFind, script.CmdFindAll:
		view, err := sr.view(p)
		if err != nil {
			return nil, err
		}
		var scoped *element.Scoped
		if step.Command == script.CmdFind {
			scoped, err = view.Find(p.Selector)
		} else {
			scoped, err = view.FindAll(p.Selector)
		}
		if err != nil {
			return nil, err
		}
		elems, err := scoped.Elements(ctx)
		if err != nil {
			return nil, err
		}
		if p.Count != nil && len(elems) != *p.Count {
			return len(elems), core.ErrAssertionFailed.WithMessagef("%s: expected %d element(s), found %d", step.Label(), *p.Count, len(elems))
		}
		return len(elems), nil

	case script.CmdFindByLabelText:
		opts := element.LabelOptions{Exact: true}
		if p.Exact != nil {
			opts.Exact = *p.Exact
		}
		scoped, err := s.FindByLabelText(p.Text, opts)
		if err != nil {
			return nil, err
		}
		if p.SendKeys != nil {
			d, err := sr.elementCommand(scoped, onFailure, command.SendKeys, *p.SendKeys)
			if err != nil {
				return nil, err
			}
			return awaitExpect(ctx, step, d)
		}
		elems, err := scoped.Elements(ctx)
		if err != nil {
			return nil, err
		}
		if len(elems) == 0 {
			return 0, core.ErrElementNotFound.WithMessagef("no input labelled %q", p.Text)
		}
		return len(elems), nil

	case script.CmdGetText, script.CmdClick, script.CmdGetAttribute,
		script.CmdGetLastElementChild, script.CmdSendKeys, script.CmdIsDisplayed:
		view, err := sr.view(p)
		if err != nil {
			return nil, err
		}
		if onFailure != nil {
			view = view.Optional(onFailure)
		}
		d, err := elementStep(view, step)
		if err != nil {
			return nil, err
		}
		return awaitExpect(ctx, step, d)

	case script.CmdNavigateTo, script.CmdGetTitle, script.CmdMaximizeWindow,
		script.CmdSetWindowPosition, script.CmdGetWindowRect:
		d, err := sr.protocolStep(step, onFailure)
		if err != nil {
			return nil, err
		}
		return awaitExpect(ctx, step, d)

	case script.CmdPause:
		d, err := locator.ParseDuration(p.Duration)
		if err != nil {
			return nil, core.ErrInvalidArgument.WithMessagef("pause: %v", err)
		}
		return awaitExpect(ctx, step, s.Pause(d))
	}
	return nil, core.ErrUnknownCommand.WithMessagef("unknown command %q", step.Command)
}

func (sr *scriptRunner) view(p script.Params) (*session.View, error) {
	if p.Using == "" {
		return &sr.session.View, nil
	}
	return sr.session.Using(core.Strategy(p.Using))
}

// protocolStep enqueues the window or navigation command behind step.
func (sr *scriptRunner) protocolStep(step script.Step, onFailure func(error)) (*queue.Deferred, error) {
	p := step.Params
	var (
		name string
		args []interface{}
	)
	switch step.Command {
	case script.CmdNavigateTo:
		name, args = command.NavigateTo, []interface{}{p.URL}
	case script.CmdGetTitle:
		name = command.GetTitle
	case script.CmdMaximizeWindow:
		name = command.WindowMaximize
	case script.CmdSetWindowPosition:
		name, args = command.WindowSetPosition, []interface{}{p.X, p.Y}
	case script.CmdGetWindowRect:
		name = command.WindowGetRect
	default:
		return nil, core.ErrUnknownCommand.WithMessagef("%s is not a protocol step", step.Command)
	}
	if onFailure != nil {
		return sr.session.OptionalCommand(onFailure, name, args...)
	}
	return sr.session.Command(name, args...)
}

func (sr *scriptRunner) elementCommand(target *element.Scoped, onFailure func(error), name string, args ...interface{}) (*queue.Deferred, error) {
	if onFailure != nil {
		return target.OptionalCommand(onFailure, name, args...)
	}
	return target.Command(name, args...)
}

func elementStep(view *session.View, step script.Step) (*queue.Deferred, error) {
	p := step.Params
	switch step.Command {
	case script.CmdGetText:
		return view.GetText(p.Selector)
	case script.CmdClick:
		return view.Click(p.Selector)
	case script.CmdGetAttribute:
		return view.GetAttribute(p.Selector, p.Name)
	case script.CmdGetLastElementChild:
		return view.GetLastElementChild(p.Selector)
	case script.CmdSendKeys:
		return view.SendKeys(p.Selector, p.Text)
	case script.CmdIsDisplayed:
		return view.IsDisplayed(p.Selector)
	}
	return nil, core.ErrUnknownCommand.WithMessagef("%s is not an element step", step.Command)
}

// awaitExpect waits for d and checks the step expectation, if any.
func awaitExpect(ctx context.Context, step script.Step, d *queue.Deferred) (interface{}, error) {
	v, err := d.Await(ctx)
	if err != nil {
		return nil, err
	}
	if step.Params.Expect == nil {
		return v, nil
	}
	got := fmt.Sprint(v)
	if v == nil {
		got = ""
	}
	if got != *step.Params.Expect {
		return v, core.ErrAssertionFailed.WithMessagef("%s: expected %q, got %q", step.Label(), *step.Params.Expect, got)
	}
	return v, nil
}

// resolveInclude resolves a runScript path relative to the including script.
func resolveInclude(sourcePath, file string) string {
	return validator.ResolvePath(filepath.Dir(sourcePath), file)
}
