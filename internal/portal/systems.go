package portal

import "fmt"

// Terna and DSO specific actions.
const (
	ActionRegisterPlant           = "register-plant"
	ActionSubmitConnectionRequest = "submit-connection-request"
)

func declarationAction(page string) actionSpec {
	return actionSpec{
		needsLogin: true,
		input:      func() any { return &DeclarationPayload{} },
		steps: func(in any) []Step {
			p := in.(*DeclarationPayload)
			steps := []Step{
				{Op: "navigate", Target: page},
				{Op: "fill", Target: "kind=" + p.Kind},
				{Op: "fill", Target: "period=" + p.Period},
			}
			for _, a := range p.Attachments {
				steps = append(steps, Step{Op: "fill", Target: "attachment=" + a})
			}
			return append(steps, Step{Op: "submit", Target: "declaration"})
		},
	}
}

// GSE: incentive and energy declarations.
func gseActions() map[string]actionSpec {
	return map[string]actionSpec{
		ActionLogin:             loginAction(),
		ActionSubmitDeclaration: declarationAction("/area-clienti/dichiarazioni"),
		ActionCheckStatus:       statusAction("/area-clienti/pratiche"),
		ActionDownloadDocuments: downloadAction("/area-clienti/documenti"),
	}
}

// Terna: grid operator, plant registry (GAUDI).
func ternaActions() map[string]actionSpec {
	return map[string]actionSpec{
		ActionLogin:             loginAction(),
		ActionSubmitDeclaration: declarationAction("/myterna/dichiarazioni"),
		ActionCheckStatus:       statusAction("/myterna/pratiche"),
		ActionDownloadDocuments: downloadAction("/myterna/documenti"),
		ActionRegisterPlant: {
			needsLogin: true,
			input:      func() any { return &PlantRegistrationPayload{} },
			steps: func(in any) []Step {
				p := in.(*PlantRegistrationPayload)
				return []Step{
					{Op: "navigate", Target: "/gaudi/impianti/nuovo"},
					{Op: "fill", Target: "name=" + p.PlantName},
					{Op: "fill", Target: "technology=" + p.Technology},
					{Op: "fill", Target: fmt.Sprintf("power_kw=%.2f", p.PowerKW)},
					{Op: "fill", Target: "pod=" + p.POD},
					{Op: "fill", Target: "municipality=" + p.Municipality},
					{Op: "submit", Target: "plant"},
				}
			},
		},
	}
}

// DSO: distribution operator, connection requests.
func dsoActions() map[string]actionSpec {
	return map[string]actionSpec{
		ActionLogin:             loginAction(),
		ActionSubmitDeclaration: declarationAction("/produttori/dichiarazioni"),
		ActionCheckStatus:       statusAction("/produttori/pratiche"),
		ActionDownloadDocuments: downloadAction("/produttori/documenti"),
		ActionSubmitConnectionRequest: {
			needsLogin: true,
			input:      func() any { return &ConnectionRequestPayload{} },
			steps: func(in any) []Step {
				p := in.(*ConnectionRequestPayload)
				steps := []Step{
					{Op: "navigate", Target: "/produttori/connessioni/nuova"},
					{Op: "fill", Target: "kind=" + p.Kind},
					{Op: "fill", Target: fmt.Sprintf("power_kw=%.2f", p.RequestedPowerKW)},
					{Op: "fill", Target: "address=" + p.Address},
				}
				if p.POD != "" {
					steps = append(steps, Step{Op: "fill", Target: "pod=" + p.POD})
				}
				return append(steps, Step{Op: "submit", Target: "connection-request"})
			},
		},
	}
}

// Customs: declarations carry a regime and goods classification.
func customsActions() map[string]actionSpec {
	return map[string]actionSpec{
		ActionLogin: loginAction(),
		ActionSubmitDeclaration: {
			needsLogin: true,
			input:      func() any { return &CustomsDeclarationPayload{} },
			steps: func(in any) []Step {
				p := in.(*CustomsDeclarationPayload)
				steps := []Step{
					{Op: "navigate", Target: "/dogane/dichiarazioni/nuova"},
					{Op: "fill", Target: "regime=" + p.Regime},
					{Op: "fill", Target: "eori=" + p.EORI},
					{Op: "fill", Target: "goods_code=" + p.GoodsCode},
					{Op: "fill", Target: fmt.Sprintf("value=%.2f", p.Value)},
				}
				for _, a := range p.Attachments {
					steps = append(steps, Step{Op: "fill", Target: "attachment=" + a})
				}
				return append(steps, Step{Op: "submit", Target: "declaration"})
			},
		},
		ActionCheckStatus:       statusAction("/dogane/pratiche"),
		ActionDownloadDocuments: downloadAction("/dogane/documenti"),
	}
}
