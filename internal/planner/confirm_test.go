package planner

import (
	"testing"

	"Karana-Planner/internal/intent"
)

func notifySteps(n int) []Step {
	steps := make([]Step, n)
	for i := range steps {
		steps[i] = namedStep(intent.OpUINotify, 200)
	}
	return steps
}

func TestRequiresConfirmation(t *testing.T) {
	cases := []struct {
		name  string
		steps []Step
		risks []string
		want  bool
	}{
		{"three quiet steps pass", notifySteps(3), nil, false},
		{"four steps need a nod", notifySteps(4), nil, true},
		{"transfer is high stakes", []Step{namedStep(intent.OpWalletTransfer, 3000)}, nil, true},
		{"security mode is high stakes", []Step{namedStep(intent.OpSecurityMode, 400)}, nil, true},
		{"system update is high stakes", []Step{namedStep(intent.OpOTAInstall, 30000)}, nil, true},
		{"destructive names are high stakes", []Step{namedStep("FILE_DELETE", 500)}, nil, true},
		{"warning marker triggers", notifySteps(1), []string{"Warning: battery at 10% may not sustain this step (150 mAh)"}, true},
		{"downgrade marker triggers", notifySteps(1), []string{"lock DOWNGRADE detected"}, true},
		{"plain risk does not trigger", notifySteps(1), []string{"Vision analysis shares camera frames without recorded consent"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := requiresConfirmation(tc.steps, tc.risks); got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestConfirmationMessageLayout(t *testing.T) {
	steps := []Step{
		namedStep(intent.OpWalletCreate, 2000),
		namedStep(intent.OpWalletTransfer, 3000),
	}
	risks := []string{
		"Will transfer 100 KARA",
		"Warning: transfer exceeds 50% of the 0 KARA balance",
	}
	want := "1. WALLET_CREATE\n" +
		"2. WALLET_TRANSFER\n" +
		"Risks:\n" +
		"- Will transfer 100 KARA\n" +
		"- Warning: transfer exceeds 50% of the 0 KARA balance\n" +
		"Reply 'proceed' to continue or 'cancel' to abort."
	if got := confirmationMessage(steps, risks); got != want {
		t.Fatalf("unexpected message:\n%s", got)
	}
}

func TestConfirmationMessageWithoutRisks(t *testing.T) {
	want := "1. UI_NOTIFY\n" +
		"Reply 'proceed' to continue or 'cancel' to abort."
	if got := confirmationMessage(notifySteps(1), nil); got != want {
		t.Fatalf("unexpected message:\n%s", got)
	}
}
