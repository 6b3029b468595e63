// Package stream defines the typed events an agent request emits and the
// newline-delimited JSON encoding they travel in.
package stream

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind 事件類型
type Kind string

const (
	KindThought      Kind = "thought"
	KindText         Kind = "text"
	KindFinalOutput  Kind = "final_output"
	KindChart        Kind = "chart"
	KindTable        Kind = "table"
	KindEmailPreview Kind = "email_preview"
	KindError        Kind = "error"
	// KindEnd is the only authoritative terminal event. final_output is a
	// headline hint and may be absent.
	KindEnd Kind = "end"
)

// Event is one record of the outbound stream.
type Event struct {
	Type Kind `json:"type"`
	Data any  `json:"data"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Tool    string `json:"tool"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// EmailPreview is the data of an email_preview event.
type EmailPreview struct {
	ID      string `json:"id,omitempty"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Message string `json:"message"`
}

// Table is the data of a table event.
type Table struct {
	Caption string     `json:"caption"`
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// Chart is the data of a chart event.
type Chart struct {
	ChartType     string           `json:"chartType"`
	CategoryField string           `json:"categoryField"`
	ValueFields   []string         `json:"valueFields"`
	Rows          []map[string]any `json:"rows"`
}

func Thought(text string) Event     { return Event{Type: KindThought, Data: text} }
func Text(token string) Event       { return Event{Type: KindText, Data: token} }
func FinalOutput(text string) Event { return Event{Type: KindFinalOutput, Data: text} }
func ChartEvent(c Chart) Event      { return Event{Type: KindChart, Data: c} }
func TableEvent(t Table) Event      { return Event{Type: KindTable, Data: t} }
func Preview(p EmailPreview) Event  { return Event{Type: KindEmailPreview, Data: p} }
func Error(p ErrorPayload) Event    { return Event{Type: KindError, Data: p} }
func End() Event                    { return Event{Type: KindEnd, Data: nil} }

// Sink receives the events of one request in emission order.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }

// Recorder is an in-memory Sink, safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded event types in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Type
	}
	return kinds
}

// Filter returns the recorded events of kind k.
func (r *Recorder) Filter(k Kind) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == k {
			out = append(out, ev)
		}
	}
	return out
}

// Multi fans each event out to every sink in order. The first error is
// returned after all sinks have been tried.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ev Event) error {
		var first error
		for _, s := range sinks {
			if err := s.Emit(ev); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
