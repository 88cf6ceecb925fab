package mailq

import "text/template"

// DefaultTemplates returns the built-in plain-text bodies for every
// notification the engine enqueues. Deployments with their own copy can
// pass a replacement set to [NewConsumer]; template names must match the
// Template* constants.
func DefaultTemplates() *template.Template {
	root := template.New("mail")
	for name, body := range defaultTemplateBodies {
		template.Must(root.New(name).Parse(body))
	}
	return root
}

var defaultTemplateBodies = map[string]string{
	TemplateVerification: `Hello,

Your account verification code is {{.code}}.

It expires at {{.expires_at}}. If you did not create an account, ignore this message.
`,
	TemplateMagicLink: `Hello,

Your one-time login code is {{.code}}.

It expires at {{.expires_at}}. If you did not request it, ignore this message.
`,
	TemplateReactivation: `Hello,

Your account reactivation code is {{.code}}.

It expires at {{.expires_at}}.
`,
	TemplatePasswordReset: `Hello,

Your password reset code is {{.code}}.

It expires at {{.expires_at}}. If you did not request a reset, ignore this message.
`,
	TemplatePasswordChanged: `Hello,

The password for {{.email}} was just changed. If this was not you, contact an administrator immediately.
`,
	TemplateSuspensionNotice: `Hello,

The account {{.email}} was suspended after a year without activity ({{.suspended_at}}).

To reactivate it, request a reactivation code.
`,
	TemplateSuspensionWarning: `Hello,

The account {{.email}} last logged in on {{.last_login}} and will be suspended on {{.suspension_at}} unless you log in before then.
`,
}
