package command

// Translator maps a validated (control point, state) pair to a Command.
//
// The mapping is two-valued: the activate token yields true and every other
// permitted token yields false. Supporting non-boolean data points would
// need a per-state value table in the catalog instead.
type Translator struct {
	activate string
}

// NewTranslator returns a Translator for the given activate token.
func NewTranslator(activate string) Translator {
	return Translator{activate: activate}
}

// Translate builds the Command for an accepted Result's control point and state.
func (t Translator) Translate(controlPoint, state string) Command {
	return Command{
		Code:  controlPoint,
		Value: state == t.activate,
	}
}

// TranslateResult is Translate applied to an accepted Result. The boolean is
// false, and no Command is built, for any other Result.
func (t Translator) TranslateResult(r Result) (Command, bool) {
	if !r.Accepted() {
		return Command{}, false
	}
	return t.Translate(r.ControlPoint, r.State), true
}
