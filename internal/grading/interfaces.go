package grading

type Grader interface {
	Validate(step Step, input, output string) Result
}
