package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/psync-dev/psync/internal/config"
)

const (
	fieldAccessKey = iota
	fieldSecretKey
	fieldRegion
	fieldBucket
	fieldEndpoint
	fieldCount
)

const (
	txtTitle          = "psync configuration"
	txtConfirmReplace = "A config already exists. Replace it? (y/N)"
	txtFormPrompt     = "Enter your AWS credentials and bucket"
	txtSaving         = "Saving config..."
	txtHelpForm       = "Press 'Tab' or 'Enter' for the next field. 'Enter' on the last field saves. 'Esc' to quit."
	txtHelpConfirm    = "Press 'y' to replace the config. Any other key quits."
)

var errConfigCancelled = errors.New("configuration cancelled by user")

var (
	focusedStyle     = green
	blurredStyle     = gray
	helpStyle        = gray
	errorTextStyle   = red
	spinnerStyle     = cyan
	placeholderStyle = gray
	titleStyle       = cyan.Bold(true)
)

var fieldLabels = [fieldCount]string{
	fieldAccessKey: "Access Key ID",
	fieldSecretKey: "Secret Access Key",
	fieldRegion:    "Region",
	fieldBucket:    "Bucket",
	fieldEndpoint:  "Endpoint (optional)",
}

type ConfigTUIOpts struct {
	ConfigPath string
	// Initial values prefill the form.
	Initial config.Config
	// Confirm asks before replacing an existing config.
	Confirm       bool
	SubmitHandler func(cfg *config.Config) error
}

type configModel struct {
	opts *ConfigTUIOpts

	inputs  [fieldCount]textinput.Model
	focus   int
	spinner spinner.Model

	confirming   bool
	isLoading    bool
	done         bool
	cancelled    bool
	errorMessage string
	result       *config.Config
}

type configSavedMsg struct {
	cfg *config.Config
	err error
}

func newConfigModel(opts *ConfigTUIOpts) configModel {
	initial := [fieldCount]string{
		fieldAccessKey: opts.Initial.AWS.AccessKeyID,
		fieldSecretKey: opts.Initial.AWS.SecretAccessKey,
		fieldRegion:    opts.Initial.AWS.Region,
		fieldBucket:    opts.Initial.Bucket,
		fieldEndpoint:  opts.Initial.AWS.Endpoint,
	}

	m := configModel{
		opts:       opts,
		confirming: opts.Confirm,
	}

	for i := range m.inputs {
		in := textinput.New()
		in.CharLimit = 256
		in.Width = 48
		in.Prompt = "> "
		in.PromptStyle = blurredStyle
		in.PlaceholderStyle = placeholderStyle
		in.SetValue(initial[i])
		m.inputs[i] = in
	}
	m.inputs[fieldRegion].Placeholder = config.DefaultRegion
	m.inputs[fieldEndpoint].Placeholder = "https://minio.example.com"
	m.inputs[fieldSecretKey].EchoMode = textinput.EchoPassword
	m.inputs[fieldSecretKey].EchoCharacter = '•'

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle
	m.spinner = s

	if !m.confirming {
		m.focusField(m.firstEmptyField())
	}
	return m
}

func (m configModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m configModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			return m, tea.Quit
		}
		if m.isLoading {
			return m, nil
		}
		if m.confirming {
			return m.handleConfirmKey(msg)
		}
		return m.handleFormKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case configSavedMsg:
		return m.handleSaved(msg)
	}

	return m, nil
}

func (m configModel) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyRunes && strings.EqualFold(string(msg.Runes), "y") {
		m.confirming = false
		m.focusField(m.firstEmptyField())
		return m, textinput.Blink
	}
	m.cancelled = true
	return m, tea.Quit
}

func (m configModel) handleFormKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.cancelled = true
		return m, tea.Quit

	case tea.KeyTab, tea.KeyDown:
		m.focusField((m.focus + 1) % fieldCount)
		return m, textinput.Blink

	case tea.KeyShiftTab, tea.KeyUp:
		m.focusField((m.focus + fieldCount - 1) % fieldCount)
		return m, textinput.Blink

	case tea.KeyEnter:
		if m.focus < fieldCount-1 {
			m.focusField(m.focus + 1)
			return m, textinput.Blink
		}
		return m.submit()
	}

	m.errorMessage = ""
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m configModel) submit() (tea.Model, tea.Cmd) {
	cfg := m.formConfig()
	if missing := cfg.Missing(); len(missing) > 0 {
		m.errorMessage = "Missing " + strings.Join(missing, ", ")
		return m, nil
	}

	m.errorMessage = ""
	m.isLoading = true
	m.inputs[m.focus].Blur()

	handler := m.opts.SubmitHandler
	return m, func() tea.Msg {
		if handler == nil {
			return configSavedMsg{cfg: cfg}
		}
		return configSavedMsg{cfg: cfg, err: handler(cfg)}
	}
}

func (m configModel) handleSaved(msg configSavedMsg) (tea.Model, tea.Cmd) {
	m.isLoading = false

	if msg.err != nil {
		m.errorMessage = fmt.Sprintf("%s %s", errorHeaderStyle.Render("ERROR:"), msg.err.Error())
		m.focusField(m.focus)
		return m, textinput.Blink
	}

	m.done = true
	m.result = msg.cfg
	return m, tea.Quit
}

// focusField moves the cursor to field i.
func (m *configModel) focusField(i int) {
	for j := range m.inputs {
		if j == i {
			m.inputs[j].Focus()
			m.inputs[j].PromptStyle = focusedStyle
			m.inputs[j].TextStyle = focusedStyle
			continue
		}
		m.inputs[j].Blur()
		m.inputs[j].PromptStyle = blurredStyle
		m.inputs[j].TextStyle = blurredStyle
	}
	m.focus = i
}

func (m configModel) firstEmptyField() int {
	for i := range m.inputs {
		if i == fieldEndpoint {
			break
		}
		if strings.TrimSpace(m.inputs[i].Value()) == "" {
			return i
		}
	}
	return fieldAccessKey
}

func (m configModel) formConfig() *config.Config {
	val := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }
	return &config.Config{
		AWS: config.AWS{
			AccessKeyID:     val(fieldAccessKey),
			SecretAccessKey: val(fieldSecretKey),
			Region:          val(fieldRegion),
			Endpoint:        val(fieldEndpoint),
		},
		Bucket: val(fieldBucket),
	}
}

func (m configModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(txtTitle))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s%s\n\n", gray.Render("Config  "), green.Render(m.opts.ConfigPath)))

	if m.confirming {
		b.WriteString(yellow.Render(txtConfirmReplace))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(txtHelpConfirm))
		b.WriteString("\n")
		return b.String()
	}

	b.WriteString(txtFormPrompt)
	b.WriteString("\n")
	for i := range m.inputs {
		b.WriteString("\n")
		label := fieldLabels[i]
		if i == m.focus {
			b.WriteString(focusedStyle.Render(label))
		} else {
			b.WriteString(blurredStyle.Render(label))
		}
		b.WriteString("\n")
		b.WriteString(m.inputs[i].View())
		b.WriteString("\n")
	}

	if m.isLoading {
		b.WriteString(fmt.Sprintf("\n%s %s", m.spinner.View(), txtSaving))
	}
	if m.errorMessage != "" {
		b.WriteString("\n")
		b.WriteString(errorTextStyle.Render(m.errorMessage))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(txtHelpForm))
	b.WriteString("\n")
	return b.String()
}

// RunConfigTUI prompts for the config values and returns the saved config.
func RunConfigTUI(opts ConfigTUIOpts) (*config.Config, error) {
	model, err := tea.NewProgram(newConfigModel(&opts)).Run()
	if err != nil {
		return nil, fmt.Errorf("config form failed: %w", err)
	}

	fm, ok := model.(configModel)
	if !ok || fm.cancelled || !fm.done {
		return nil, errConfigCancelled
	}
	return fm.result, nil
}
