package lang

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Parse lexes and parses a complete source document, returning a typed
// *ParseError (never a bare error) on any lexical or grammatical failure.
func Parse(source string) (AuroraFile, error) {
	tokens, err := tokenize(source)
	if err != nil {
		return AuroraFile{}, err
	}
	p := &parser{tokens: tokens, scorePatterns: map[string]scorePattern{}}
	return p.parse()
}

type scorePattern struct {
	sections []SectionDefinition
	span     UnitNumber
}

type reusableCall struct {
	name        string
	count       int
	startOffset UnitNumber
}

type parser struct {
	tokens        []Token
	position      int
	scorePatterns map[string]scorePattern
}

func (p *parser) atEnd() bool { return p.peek(0).Kind == TokenEnd }

func (p *parser) peek(lookahead int) Token {
	idx := p.position + lookahead
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *parser) consume() Token {
	t := p.peek(0)
	if !p.atEnd() {
		p.position++
	}
	return t
}

func (p *parser) matchSymbol(symbol byte) bool {
	t := p.peek(0)
	if t.Kind == TokenSymbol && len(t.Text) == 1 && t.Text[0] == symbol {
		p.consume()
		return true
	}
	return false
}

func (p *parser) matchIdentifier(identifier string) bool {
	t := p.peek(0)
	if t.Kind == TokenIdentifier && t.Text == identifier {
		p.consume()
		return true
	}
	return false
}

func (p *parser) expectSymbol(symbol byte, context string) error {
	if p.matchSymbol(symbol) {
		return nil
	}
	t := p.peek(0)
	return newParseError(t.Line, t.Column, fmt.Sprintf("expected '%c' in %s", symbol, context))
}

func (p *parser) expectIdentifierLike(context string) (string, error) {
	t := p.peek(0)
	if t.Kind == TokenIdentifier || t.Kind == TokenString {
		p.consume()
		return t.Text, nil
	}
	return "", newParseError(t.Line, t.Column, "expected identifier in "+context)
}

func (p *parser) parseDottedIdentifier(context string) (string, error) {
	out, err := p.expectIdentifierLike(context)
	if err != nil {
		return "", err
	}
	for p.matchSymbol('.') {
		next, err := p.expectIdentifierLike(context)
		if err != nil {
			return "", err
		}
		out += "." + next
	}
	return out, nil
}

func valueAsString(v ParamValue) string {
	switch v.Kind {
	case KindString, KindIdentifier:
		return v.StringValue
	case KindNumber:
		return strconv.FormatFloat(v.NumberValue, 'f', -1, 64)
	case KindUnitNumber:
		return strconv.FormatFloat(v.UnitNumberValue.Value, 'f', -1, 64) + v.UnitNumberValue.Unit
	default:
		return v.DebugString()
	}
}

func valueAsNumber(v ParamValue, fallback float64) float64 {
	switch v.Kind {
	case KindNumber:
		return v.NumberValue
	case KindUnitNumber:
		return v.UnitNumberValue.Value
	default:
		return fallback
	}
}

func valueAsUnitNumber(v ParamValue, line, column int, context string) (UnitNumber, error) {
	switch v.Kind {
	case KindUnitNumber:
		return v.UnitNumberValue, nil
	case KindNumber:
		return UnitNumber{Value: v.NumberValue, Unit: "s"}, nil
	default:
		return UnitNumber{}, newParseError(line, column, "expected numeric time literal in "+context+", got "+v.DebugString())
	}
}

func valueAsObject(v ParamValue, line, column int, context string) (map[string]ParamValue, error) {
	if v.Kind != KindObject {
		return nil, newParseError(line, column, "expected object in "+context+", got "+v.DebugString())
	}
	return v.ObjectValues, nil
}

func valueAsList(v ParamValue, line, column int, context string) ([]ParamValue, error) {
	if v.Kind != KindList {
		return nil, newParseError(line, column, "expected list in "+context+", got "+v.DebugString())
	}
	return v.ListValues, nil
}

func (p *parser) parseValue() (ParamValue, error) {
	t := p.peek(0)
	switch t.Kind {
	case TokenString:
		p.consume()
		return String(t.Text), nil
	case TokenNumber:
		p.consume()
		parsed := parseNumberUnitToken(t.Text)
		if !parsed.ok {
			return ParamValue{}, newParseError(t.Line, t.Column, "invalid numeric literal: "+t.Text)
		}
		if parsed.unit == "" {
			return Number(parsed.value), nil
		}
		return Unit(parsed.value, parsed.unit), nil
	case TokenIdentifier:
		p.consume()
		if t.Text == "true" {
			return Bool(true), nil
		}
		if t.Text == "false" {
			return Bool(false), nil
		}
		if p.matchSymbol('(') {
			var args []ParamValue
			if !p.matchSymbol(')') {
				for {
					arg, err := p.parseValue()
					if err != nil {
						return ParamValue{}, err
					}
					args = append(args, arg)
					if p.matchSymbol(')') {
						break
					}
					if err := p.expectSymbol(',', "call arguments"); err != nil {
						return ParamValue{}, err
					}
				}
			}
			return Call(t.Text, args), nil
		}
		return Identifier(t.Text), nil
	}
	if p.matchSymbol('{') {
		object := map[string]ParamValue{}
		if !p.matchSymbol('}') {
			for {
				keyToken := p.peek(0)
				if keyToken.Kind != TokenIdentifier && keyToken.Kind != TokenString && keyToken.Kind != TokenNumber {
					return ParamValue{}, newParseError(keyToken.Line, keyToken.Column, "expected object key")
				}
				key := keyToken.Text
				p.consume()
				if err := p.expectSymbol(':', "object key/value pair"); err != nil {
					return ParamValue{}, err
				}
				value, err := p.parseValue()
				if err != nil {
					return ParamValue{}, err
				}
				object[key] = value
				if p.matchSymbol('}') {
					break
				}
				p.matchSymbol(',')
			}
		}
		return Object(object), nil
	}
	if p.matchSymbol('[') {
		var list []ParamValue
		if !p.matchSymbol(']') {
			for {
				v, err := p.parseValue()
				if err != nil {
					return ParamValue{}, err
				}
				list = append(list, v)
				if p.matchSymbol(']') {
					break
				}
				if err := p.expectSymbol(',', "list literal"); err != nil {
					return ParamValue{}, err
				}
			}
		}
		return List(list), nil
	}
	return ParamValue{}, newParseError(t.Line, t.Column, "expected value literal")
}

func (p *parser) parseObjectBody() (map[string]ParamValue, error) {
	if err := p.expectSymbol('{', "object body"); err != nil {
		return nil, err
	}
	object := map[string]ParamValue{}
	if p.matchSymbol('}') {
		return object, nil
	}
	for {
		keyToken := p.peek(0)
		if keyToken.Kind != TokenIdentifier && keyToken.Kind != TokenString && keyToken.Kind != TokenNumber {
			return nil, newParseError(keyToken.Line, keyToken.Column, "expected object key")
		}
		key := keyToken.Text
		p.consume()
		if err := p.expectSymbol(':', "object key/value pair"); err != nil {
			return nil, err
		}
		value, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		object[key] = value
		if p.matchSymbol('}') {
			break
		}
		p.matchSymbol(',')
	}
	return object, nil
}

func parseStemValue(v ParamValue) string {
	if name, ok := v.StemName(); ok {
		return name
	}
	return valueAsString(v)
}

func (p *parser) parseGraph(graphValue ParamValue) (GraphDefinition, error) {
	graphToken := p.peek(0)
	var graph GraphDefinition
	graphObj, err := valueAsObject(graphValue, graphToken.Line, graphToken.Column, "graph")
	if err != nil {
		return graph, err
	}

	if nodesValue, ok := graphObj["nodes"]; ok {
		nodeValues, err := valueAsList(nodesValue, graphToken.Line, graphToken.Column, "graph.nodes")
		if err != nil {
			return graph, err
		}
		for _, nodeValue := range nodeValues {
			nodeObj, err := valueAsObject(nodeValue, graphToken.Line, graphToken.Column, "graph.nodes[]")
			if err != nil {
				return graph, err
			}
			idValue, hasID := nodeObj["id"]
			typeValue, hasType := nodeObj["type"]
			if !hasID || !hasType {
				return graph, newParseError(graphToken.Line, graphToken.Column, "graph node must contain id and type")
			}
			node := GraphNode{ID: valueAsString(idValue), Type: valueAsString(typeValue)}
			if paramsValue, ok := nodeObj["params"]; ok && paramsValue.Kind == KindObject {
				node.Params = paramsValue.ObjectValues
			}
			graph.Nodes = append(graph.Nodes, node)
		}
	}

	if connectValue, ok := graphObj["connect"]; ok {
		connValues, err := valueAsList(connectValue, graphToken.Line, graphToken.Column, "graph.connect")
		if err != nil {
			return graph, err
		}
		for _, connValue := range connValues {
			connObj, err := valueAsObject(connValue, graphToken.Line, graphToken.Column, "graph.connect[]")
			if err != nil {
				return graph, err
			}
			fromValue, hasFrom := connObj["from"]
			toValue, hasTo := connObj["to"]
			if !hasFrom || !hasTo {
				return graph, newParseError(graphToken.Line, graphToken.Column, "graph connection must contain from and to")
			}
			conn := GraphConnection{From: valueAsString(fromValue), To: valueAsString(toValue), Rate: "audio"}
			if rateValue, ok := connObj["rate"]; ok {
				conn.Rate = valueAsString(rateValue)
			}
			if mapValue, ok := connObj["map"]; ok && mapValue.Kind == KindObject {
				conn.Map = mapValue.ObjectValues
			}
			graph.Connections = append(graph.Connections, conn)
		}
	}

	if ioValue, ok := graphObj["io"]; ok {
		ioObj, err := valueAsObject(ioValue, graphToken.Line, graphToken.Column, "graph.io")
		if err != nil {
			return graph, err
		}
		if outValue, ok := ioObj["out"]; ok {
			graph.Out = valueAsString(outValue)
		}
	}

	return graph, nil
}

func (p *parser) parsePatch() (PatchDefinition, error) {
	name, err := p.expectIdentifierLike("patch name")
	if err != nil {
		return PatchDefinition{}, err
	}
	patch := DefaultPatchDefinition(name)
	body, err := p.parseObjectBody()
	if err != nil {
		return PatchDefinition{}, err
	}

	if v, ok := body["poly"]; ok {
		patch.Poly = int(valueAsNumber(v, 8))
	}
	if v, ok := body["voice_steal"]; ok {
		patch.VoiceSteal = valueAsString(v)
	}
	if v, ok := body["mono"]; ok && v.Kind == KindBool {
		patch.Mono = v.BoolValue
	}
	if v, ok := body["legato"]; ok && v.Kind == KindBool {
		patch.Legato = v.BoolValue
	}
	if v, ok := body["retrig"]; ok {
		patch.Retrig = valueAsString(v)
	}
	if v, ok := body["binaural"]; ok && v.Kind == KindObject {
		binauralObj := v.ObjectValues
		if enabled, ok := binauralObj["enabled"]; ok && enabled.Kind == KindBool {
			patch.Binaural.Enabled = enabled.BoolValue
		}
		if shift, ok := binauralObj["shift"]; ok {
			if shift.Kind == KindUnitNumber && shift.UnitNumberValue.Unit == "Hz" {
				patch.Binaural.ShiftHz = shift.UnitNumberValue.Value
			} else {
				patch.Binaural.ShiftHz = valueAsNumber(shift, patch.Binaural.ShiftHz)
			}
		} else if shiftHz, ok := binauralObj["shift_hz"]; ok {
			if shiftHz.Kind == KindUnitNumber && shiftHz.UnitNumberValue.Unit == "Hz" {
				patch.Binaural.ShiftHz = shiftHz.UnitNumberValue.Value
			} else {
				patch.Binaural.ShiftHz = valueAsNumber(shiftHz, patch.Binaural.ShiftHz)
			}
		}
		if mix, ok := binauralObj["mix"]; ok {
			patch.Binaural.Mix = valueAsNumber(mix, patch.Binaural.Mix)
		}
	}
	if v, ok := body["out"]; ok {
		patch.OutStem = parseStemValue(v)
	} else {
		patch.OutStem = patch.Name
	}
	if v, ok := body["send"]; ok && v.Kind == KindObject {
		sendObj := v.ObjectValues
		send := SendDefinition{}
		if bus, ok := sendObj["bus"]; ok {
			send.Bus = valueAsString(bus)
		}
		if amount, ok := sendObj["amount"]; ok {
			if amount.Kind == KindUnitNumber && amount.UnitNumberValue.Unit == "dB" {
				send.AmountDB = amount.UnitNumberValue.Value
			} else if amount.Kind == KindNumber {
				send.AmountDB = amount.NumberValue
			}
		}
		patch.Send = &send
	}
	if v, ok := body["graph"]; ok {
		graph, err := p.parseGraph(v)
		if err != nil {
			return PatchDefinition{}, err
		}
		patch.Graph = graph
	}
	return patch, nil
}

func (p *parser) parseBus() (BusDefinition, error) {
	name, err := p.expectIdentifierLike("bus name")
	if err != nil {
		return BusDefinition{}, err
	}
	bus := DefaultBusDefinition(name)
	body, err := p.parseObjectBody()
	if err != nil {
		return BusDefinition{}, err
	}
	if v, ok := body["channels"]; ok {
		bus.Channels = int(math.Round(valueAsNumber(v, 1)))
	}
	if v, ok := body["out"]; ok {
		bus.OutStem = parseStemValue(v)
	} else {
		bus.OutStem = bus.Name
	}
	if v, ok := body["graph"]; ok {
		graph, err := p.parseGraph(v)
		if err != nil {
			return BusDefinition{}, err
		}
		bus.Graph = graph
	}
	return bus, nil
}

func (p *parser) parsePlayEvent() (PlayEvent, error) {
	event := PlayEvent{Vel: 1.0}
	name, err := p.expectIdentifierLike("play patch name")
	if err != nil {
		return event, err
	}
	event.Patch = name
	bodyToken := p.peek(0)
	bodyValue, err := p.parseValue()
	if err != nil {
		return event, err
	}
	body, err := valueAsObject(bodyValue, bodyToken.Line, bodyToken.Column, "play event")
	if err != nil {
		return event, err
	}
	if v, ok := body["at"]; ok {
		event.At, err = valueAsUnitNumber(v, bodyToken.Line, bodyToken.Column, "play.at")
		if err != nil {
			return event, err
		}
	}
	if v, ok := body["dur"]; ok {
		event.Dur, err = valueAsUnitNumber(v, bodyToken.Line, bodyToken.Column, "play.dur")
		if err != nil {
			return event, err
		}
	}
	if v, ok := body["vel"]; ok {
		event.Vel = valueAsNumber(v, 1.0)
	}
	if v, ok := body["pitch"]; ok {
		if v.Kind == KindList {
			event.PitchValues = v.ListValues
		} else {
			event.PitchValues = append(event.PitchValues, v)
		}
	}
	if v, ok := body["params"]; ok && v.Kind == KindObject {
		event.Params = v.ObjectValues
	}
	return event, nil
}

func (p *parser) parseGateLikeEvent(context string, defaultDur UnitNumber) (PlayEvent, error) {
	event := PlayEvent{Vel: 1.0}
	name, err := p.expectIdentifierLike(context + " patch name")
	if err != nil {
		return event, err
	}
	event.Patch = name
	bodyToken := p.peek(0)
	bodyValue, err := p.parseValue()
	if err != nil {
		return event, err
	}
	body, err := valueAsObject(bodyValue, bodyToken.Line, bodyToken.Column, context+" event")
	if err != nil {
		return event, err
	}
	if v, ok := body["at"]; ok {
		event.At, err = valueAsUnitNumber(v, bodyToken.Line, bodyToken.Column, context+".at")
		if err != nil {
			return event, err
		}
	}
	if v, ok := body["dur"]; ok {
		event.Dur, err = valueAsUnitNumber(v, bodyToken.Line, bodyToken.Column, context+".dur")
		if err != nil {
			return event, err
		}
	} else {
		event.Dur = defaultDur
	}
	if v, ok := body["vel"]; ok {
		event.Vel = valueAsNumber(v, 1.0)
	}
	if v, ok := body["pitch"]; ok {
		if v.Kind == KindList {
			event.PitchValues = v.ListValues
		} else {
			event.PitchValues = append(event.PitchValues, v)
		}
	}
	if v, ok := body["params"]; ok && v.Kind == KindObject {
		event.Params = v.ObjectValues
	}
	return event, nil
}

func (p *parser) parseAutomateEvent() (AutomateEvent, error) {
	event := AutomateEvent{Curve: "linear"}
	target, err := p.parseDottedIdentifier("automation target")
	if err != nil {
		return event, err
	}
	event.Target = target
	curve, err := p.expectIdentifierLike("automation curve")
	if err != nil {
		return event, err
	}
	event.Curve = curve

	if err := p.expectSymbol('{', "automation block"); err != nil {
		return event, err
	}
	if !p.matchSymbol('}') {
		for {
			tk := p.peek(0)
			if tk.Kind != TokenNumber {
				return event, newParseError(tk.Line, tk.Column, "expected time key in automation map")
			}
			p.consume()
			parsed := parseNumberUnitToken(tk.Text)
			if !parsed.ok {
				return event, newParseError(tk.Line, tk.Column, "invalid automation time key: "+tk.Text)
			}
			unit := parsed.unit
			if unit == "" {
				unit = "s"
			}
			time := UnitNumber{Value: parsed.value, Unit: unit}
			if err := p.expectSymbol(':', "automation point"); err != nil {
				return event, err
			}
			value, err := p.parseValue()
			if err != nil {
				return event, err
			}
			event.Points = append(event.Points, AutomatePoint{At: time, Value: value})
			if p.matchSymbol('}') {
				break
			}
			p.matchSymbol(',')
		}
	}
	return event, nil
}

func (p *parser) parseSeqEvent() (SeqEvent, error) {
	event := SeqEvent{}
	name, err := p.expectIdentifierLike("seq patch name")
	if err != nil {
		return event, err
	}
	event.Patch = name
	bodyToken := p.peek(0)
	bodyValue, err := p.parseValue()
	if err != nil {
		return event, err
	}
	fields, err := valueAsObject(bodyValue, bodyToken.Line, bodyToken.Column, "seq event")
	if err != nil {
		return event, err
	}
	event.Fields = fields
	return event, nil
}

func (p *parser) parseSetEvent() (SetEvent, error) {
	target, err := p.parseDottedIdentifier("set target")
	if err != nil {
		return SetEvent{}, err
	}
	if err := p.expectSymbol('=', "set event"); err != nil {
		return SetEvent{}, err
	}
	value, err := p.parseValue()
	if err != nil {
		return SetEvent{}, err
	}
	return SetEvent{Target: target, Value: value}, nil
}

func (p *parser) parseSectionEvents() ([]SectionEvent, error) {
	var events []SectionEvent
	for !p.matchSymbol('}') {
		if p.matchIdentifier("repeat") {
			repeatCount, err := p.parsePositiveInteger("section repeat count")
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol('{', "section repeat block"); err != nil {
				return nil, err
			}
			repeatedEvents, err := p.parseSectionEvents()
			if err != nil {
				return nil, err
			}
			repeatToken := p.peek(0)
			span, err := computeSectionEventSpan(repeatedEvents, "section repeat body span", repeatToken.Line, repeatToken.Column)
			if err != nil {
				return nil, err
			}
			if span.Value <= 0 {
				t := p.peek(0)
				return nil, newParseError(t.Line, t.Column, "section repeat body span must be > 0")
			}
			for i := 0; i < repeatCount; i++ {
				offset := mulUnit(span, i)
				shifted, err := appendShiftedSectionEvents(repeatedEvents, offset, repeatToken.Line, repeatToken.Column, "section repeat expansion")
				if err != nil {
					return nil, err
				}
				events = append(events, shifted...)
			}
			continue
		}
		if p.matchIdentifier("set") {
			set, err := p.parseSetEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventSet, Set: set})
			continue
		}
		if p.matchIdentifier("use") {
			useToken := p.peek(0)
			call, err := p.parseReusableCall("use", "expected 'x' in use statement")
			if err != nil {
				return nil, err
			}
			expanded, err := p.expandReusableIntoSection(call, useToken.Line, useToken.Column, "use")
			if err != nil {
				return nil, err
			}
			events = append(events, expanded...)
			continue
		}
		if p.matchIdentifier("play") {
			play, err := p.parsePlayEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventPlay, Play: play})
			continue
		}
		if p.matchIdentifier("trigger") {
			play, err := p.parseGateLikeEvent("trigger", UnitNumber{Value: 0.01, Unit: "s"})
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventPlay, Play: play})
			continue
		}
		if p.matchIdentifier("gate") {
			play, err := p.parseGateLikeEvent("gate", UnitNumber{Value: 0.25, Unit: "s"})
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventPlay, Play: play})
			continue
		}
		if p.matchIdentifier("automate") {
			automate, err := p.parseAutomateEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventAutomate, Automate: automate})
			continue
		}
		if p.matchIdentifier("seq") {
			seq, err := p.parseSeqEvent()
			if err != nil {
				return nil, err
			}
			events = append(events, SectionEvent{Kind: SectionEventSeq, Seq: seq})
			continue
		}
		t := p.peek(0)
		return nil, newParseError(t.Line, t.Column, "unknown event in section: "+t.Text)
	}
	return events, nil
}

func (p *parser) parseSection() (SectionDefinition, error) {
	section := SectionDefinition{Directives: map[string]ParamValue{}}
	name, err := p.expectIdentifierLike("section name")
	if err != nil {
		return section, err
	}
	section.Name = name

	if !p.matchIdentifier("at") {
		t := p.peek(0)
		return section, newParseError(t.Line, t.Column, "expected 'at' in section header")
	}
	atToken := p.peek(0)
	atValue, err := p.parseValue()
	if err != nil {
		return section, err
	}
	section.At, err = valueAsUnitNumber(atValue, atToken.Line, atToken.Column, "section.at")
	if err != nil {
		return section, err
	}

	if !p.matchIdentifier("dur") {
		t := p.peek(0)
		return section, newParseError(t.Line, t.Column, "expected 'dur' in section header")
	}
	durToken := p.peek(0)
	durValue, err := p.parseValue()
	if err != nil {
		return section, err
	}
	section.Dur, err = valueAsUnitNumber(durValue, durToken.Line, durToken.Column, "section.dur")
	if err != nil {
		return section, err
	}

	if p.matchSymbol('|') {
		for {
			key, err := p.expectIdentifierLike("section directive key")
			if err != nil {
				return section, err
			}
			if err := p.expectSymbol('=', "section directive"); err != nil {
				return section, err
			}
			value, err := p.parseValue()
			if err != nil {
				return section, err
			}
			section.Directives[key] = value
			if !p.matchSymbol(',') {
				break
			}
		}
	}

	if err := p.expectSymbol('{', "section body"); err != nil {
		return section, err
	}
	section.Events, err = p.parseSectionEvents()
	if err != nil {
		return section, err
	}
	return section, nil
}

func (p *parser) parseReusableCall(context, xError string) (reusableCall, error) {
	call := reusableCall{count: 1, startOffset: UnitNumber{Unit: "s"}}
	name, err := p.expectIdentifierLike(context + " name")
	if err != nil {
		return call, err
	}
	call.name = name
	if !p.matchIdentifier("x") {
		t := p.peek(0)
		return call, newParseError(t.Line, t.Column, xError)
	}
	count, err := p.parsePositiveInteger(context + " repeat count")
	if err != nil {
		return call, err
	}
	call.count = count
	if p.matchIdentifier("at") {
		atToken := p.peek(0)
		atValue, err := p.parseValue()
		if err != nil {
			return call, err
		}
		call.startOffset, err = valueAsUnitNumber(atValue, atToken.Line, atToken.Column, context+" offset")
		if err != nil {
			return call, err
		}
	}
	return call, nil
}

func (p *parser) parsePositiveInteger(context string) (int, error) {
	t := p.peek(0)
	if t.Kind != TokenNumber {
		return 0, newParseError(t.Line, t.Column, "expected positive integer in "+context)
	}
	p.consume()
	parsed := parseNumberUnitToken(t.Text)
	if !parsed.ok || parsed.unit != "" {
		return 0, newParseError(t.Line, t.Column, "expected unitless integer in "+context)
	}
	rounded := math.Round(parsed.value)
	if math.Abs(parsed.value-rounded) > 1e-9 || rounded <= 0 {
		return 0, newParseError(t.Line, t.Column, "expected positive integer in "+context)
	}
	return int(rounded), nil
}

// addUnits sums two durations/offsets. Either side may omit its unit, in
// which case it inherits the other side's unit; units present on both sides
// must match exactly.
func addUnits(lhs, rhs UnitNumber, context string, line, column int) (UnitNumber, error) {
	unit := lhs.Unit
	if unit == "" {
		unit = rhs.Unit
	}
	rhsUnit := rhs.Unit
	if rhsUnit == "" {
		rhsUnit = unit
	}
	if unit != rhsUnit {
		return UnitNumber{}, newParseError(line, column, "mismatched time units in "+context+": "+lhs.Unit+" vs "+rhs.Unit)
	}
	return UnitNumber{Value: lhs.Value + rhs.Value, Unit: unit}, nil
}

func mulUnit(value UnitNumber, multiplier int) UnitNumber {
	return UnitNumber{Value: value.Value * float64(multiplier), Unit: value.Unit}
}

func computeSpan(sections []SectionDefinition, context string, line, column int) (UnitNumber, error) {
	if len(sections) == 0 {
		return UnitNumber{Unit: "s"}, nil
	}
	haveMax := false
	maxEnd := UnitNumber{}
	for _, section := range sections {
		end, err := addUnits(section.At, section.Dur, context, line, column)
		if err != nil {
			return UnitNumber{}, err
		}
		if !haveMax {
			maxEnd = end
			haveMax = true
			continue
		}
		if maxEnd.Unit == "" {
			maxEnd.Unit = end.Unit
		}
		endUnit := end.Unit
		if endUnit == "" {
			endUnit = maxEnd.Unit
		}
		if maxEnd.Unit != endUnit {
			return UnitNumber{}, newParseError(line, column, "mismatched time units in "+context+": "+maxEnd.Unit+" vs "+end.Unit)
		}
		if end.Value > maxEnd.Value {
			maxEnd = UnitNumber{Value: end.Value, Unit: maxEnd.Unit}
		}
	}
	if maxEnd.Unit == "" {
		maxEnd.Unit = "s"
	}
	return maxEnd, nil
}

func appendShiftedSections(input []SectionDefinition, offset UnitNumber, context string, line, column int) ([]SectionDefinition, error) {
	out := make([]SectionDefinition, 0, len(input))
	for _, section := range input {
		shifted := section
		var err error
		shifted.At, err = addUnits(section.At, offset, context, line, column)
		if err != nil {
			return nil, err
		}
		out = append(out, shifted)
	}
	return out, nil
}

func (p *parser) resolveReusable(call reusableCall, line, column int, context string) (scorePattern, error) {
	pattern, ok := p.scorePatterns[call.name]
	if !ok {
		return scorePattern{}, newParseError(line, column, "unknown "+context+": "+call.name)
	}
	if pattern.span.Value <= 0 {
		return scorePattern{}, newParseError(line, column, "reusable "+context+" span must be > 0: "+call.name)
	}
	return pattern, nil
}

func (p *parser) expandReusableToScore(call reusableCall, line, column int, context string) ([]SectionDefinition, error) {
	pattern, err := p.resolveReusable(call, line, column, context)
	if err != nil {
		return nil, err
	}
	start, err := addUnits(UnitNumber{Unit: pattern.span.Unit}, call.startOffset, context+" offset", line, column)
	if err != nil {
		return nil, err
	}
	var out []SectionDefinition
	for i := 0; i < call.count; i++ {
		offset, err := addUnits(start, mulUnit(pattern.span, i), context+" expansion", line, column)
		if err != nil {
			return nil, err
		}
		shifted, err := appendShiftedSections(pattern.sections, offset, context+" expansion", line, column)
		if err != nil {
			return nil, err
		}
		out = append(out, shifted...)
	}
	return out, nil
}

func shiftSectionEvent(event SectionEvent, offset UnitNumber, line, column int, context string) (SectionEvent, error) {
	switch event.Kind {
	case SectionEventPlay:
		shifted := event.Play
		var err error
		shifted.At, err = addUnits(shifted.At, offset, context+" play offset", line, column)
		if err != nil {
			return SectionEvent{}, err
		}
		return SectionEvent{Kind: SectionEventPlay, Play: shifted}, nil
	case SectionEventAutomate:
		shifted := event.Automate
		shifted.Points = make([]AutomatePoint, len(event.Automate.Points))
		for i, point := range event.Automate.Points {
			at, err := addUnits(point.At, offset, context+" automate offset", line, column)
			if err != nil {
				return SectionEvent{}, err
			}
			shifted.Points[i] = AutomatePoint{At: at, Value: point.Value}
		}
		return SectionEvent{Kind: SectionEventAutomate, Automate: shifted}, nil
	case SectionEventSet:
		return event, nil
	default:
		shifted := event.Seq
		fields := map[string]ParamValue{}
		for k, v := range event.Seq.Fields {
			fields[k] = v
		}
		if atValue, ok := fields["at"]; ok {
			seqAt, err := valueAsUnitNumber(atValue, line, column, context+" seq.at")
			if err != nil {
				return SectionEvent{}, err
			}
			seqAt, err = addUnits(seqAt, offset, context+" seq.at offset", line, column)
			if err != nil {
				return SectionEvent{}, err
			}
			fields["at"] = Unit(seqAt.Value, seqAt.Unit)
		} else {
			fields["at"] = Unit(offset.Value, offset.Unit)
		}
		shifted.Fields = fields
		return SectionEvent{Kind: SectionEventSeq, Seq: shifted}, nil
	}
}

func computeSectionEventSpan(events []SectionEvent, context string, line, column int) (UnitNumber, error) {
	haveMax := false
	maxEnd := UnitNumber{}
	for _, event := range events {
		if event.Kind == SectionEventSet {
			continue
		}

		start := UnitNumber{Unit: "s"}
		dur := UnitNumber{Unit: "s"}
		hasTimedExtent := false

		switch event.Kind {
		case SectionEventPlay:
			start = event.Play.At
			dur = event.Play.Dur
			hasTimedExtent = true
		case SectionEventAutomate:
			if len(event.Automate.Points) == 0 {
				continue
			}
			minT := event.Automate.Points[0].At
			maxT := event.Automate.Points[0].At
			for _, point := range event.Automate.Points {
				t := point.At
				if _, err := addUnits(minT, UnitNumber{Unit: t.Unit}, context+" automation unit check", line, column); err != nil {
					return UnitNumber{}, err
				}
				if t.Value < minT.Value {
					minT = t
				}
				if t.Value > maxT.Value {
					maxT = t
				}
			}
			start = minT
			dur = UnitNumber{Value: maxT.Value - minT.Value, Unit: maxT.Unit}
			hasTimedExtent = true
		case SectionEventSeq:
			if atValue, ok := event.Seq.Fields["at"]; ok {
				var err error
				start, err = valueAsUnitNumber(atValue, line, column, context+" seq.at")
				if err != nil {
					return UnitNumber{}, err
				}
				hasTimedExtent = true
			}
			if durValue, ok := event.Seq.Fields["dur"]; ok {
				var err error
				dur, err = valueAsUnitNumber(durValue, line, column, context+" seq.dur")
				if err != nil {
					return UnitNumber{}, err
				}
				hasTimedExtent = true
			}
		}
		if !hasTimedExtent {
			continue
		}
		end, err := addUnits(start, dur, context+" section event span", line, column)
		if err != nil {
			return UnitNumber{}, err
		}
		if !haveMax {
			maxEnd = end
			haveMax = true
			continue
		}
		if _, err := addUnits(maxEnd, UnitNumber{Unit: end.Unit}, context+" section event span", line, column); err != nil {
			return UnitNumber{}, err
		}
		if end.Value > maxEnd.Value {
			unit := maxEnd.Unit
			if unit == "" {
				unit = end.Unit
			}
			maxEnd = UnitNumber{Value: end.Value, Unit: unit}
		}
	}
	if !haveMax {
		return UnitNumber{Unit: "s"}, nil
	}
	if maxEnd.Unit == "" {
		maxEnd.Unit = "s"
	}
	return maxEnd, nil
}

func appendShiftedSectionEvents(input []SectionEvent, offset UnitNumber, line, column int, context string) ([]SectionEvent, error) {
	out := make([]SectionEvent, 0, len(input))
	for _, event := range input {
		shifted, err := shiftSectionEvent(event, offset, line, column, context)
		if err != nil {
			return nil, err
		}
		out = append(out, shifted)
	}
	return out, nil
}

func (p *parser) expandReusableIntoSection(call reusableCall, line, column int, context string) ([]SectionEvent, error) {
	pattern, err := p.resolveReusable(call, line, column, context)
	if err != nil {
		return nil, err
	}
	start, err := addUnits(UnitNumber{Unit: pattern.span.Unit}, call.startOffset, context+" offset", line, column)
	if err != nil {
		return nil, err
	}
	var out []SectionEvent
	for i := 0; i < call.count; i++ {
		iterOffset, err := addUnits(start, mulUnit(pattern.span, i), context+" expansion", line, column)
		if err != nil {
			return nil, err
		}
		for _, templSection := range pattern.sections {
			sectionOffset, err := addUnits(iterOffset, templSection.At, context+" section offset", line, column)
			if err != nil {
				return nil, err
			}
			for _, event := range templSection.Events {
				shifted, err := shiftSectionEvent(event, sectionOffset, line, column, context)
				if err != nil {
					return nil, err
				}
				out = append(out, shifted)
			}
		}
	}
	return out, nil
}

func (p *parser) parseScoreItems(allowPatternDeclaration bool) ([]SectionDefinition, error) {
	var items []SectionDefinition
	for !p.matchSymbol('}') {
		if p.matchIdentifier("section") {
			section, err := p.parseSection()
			if err != nil {
				return nil, err
			}
			items = append(items, section)
			continue
		}

		if p.matchIdentifier("repeat") {
			repeatCount, err := p.parsePositiveInteger("repeat count")
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol('{', "repeat block"); err != nil {
				return nil, err
			}
			repeatedItems, err := p.parseScoreItems(allowPatternDeclaration)
			if err != nil {
				return nil, err
			}
			repeatToken := p.peek(0)
			span, err := computeSpan(repeatedItems, "repeat body span", repeatToken.Line, repeatToken.Column)
			if err != nil {
				return nil, err
			}
			if span.Value <= 0 {
				t := p.peek(0)
				return nil, newParseError(t.Line, t.Column, "repeat body span must be > 0")
			}
			for i := 0; i < repeatCount; i++ {
				offset := mulUnit(span, i)
				shifted, err := appendShiftedSections(repeatedItems, offset, "repeat expansion", repeatToken.Line, repeatToken.Column)
				if err != nil {
					return nil, err
				}
				items = append(items, shifted...)
			}
			continue
		}

		if p.matchIdentifier("loop") {
			if !p.matchIdentifier("for") {
				t := p.peek(0)
				return nil, newParseError(t.Line, t.Column, "expected 'for' in loop declaration")
			}
			loopDurToken := p.peek(0)
			loopDurValue, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			loopDur, err := valueAsUnitNumber(loopDurValue, loopDurToken.Line, loopDurToken.Column, "loop duration")
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol('{', "loop block"); err != nil {
				return nil, err
			}
			loopItems, err := p.parseScoreItems(false)
			if err != nil {
				return nil, err
			}
			loopToken := p.peek(0)
			span, err := computeSpan(loopItems, "loop body span", loopToken.Line, loopToken.Column)
			if err != nil {
				return nil, err
			}
			if span.Value <= 0 {
				t := p.peek(0)
				return nil, newParseError(t.Line, t.Column, "loop body span must be > 0")
			}
			loopDurNorm, err := addUnits(UnitNumber{Unit: span.Unit}, loopDur, "loop duration", loopToken.Line, loopToken.Column)
			if err != nil {
				return nil, err
			}
			count := int(math.Floor(loopDurNorm.Value / span.Value))
			for i := 0; i < count; i++ {
				offset := mulUnit(span, i)
				shifted, err := appendShiftedSections(loopItems, offset, "loop expansion", loopToken.Line, loopToken.Column)
				if err != nil {
					return nil, err
				}
				items = append(items, shifted...)
			}
			continue
		}

		if allowPatternDeclaration && p.matchIdentifier("pattern") {
			patternName, err := p.expectIdentifierLike("pattern name")
			if err != nil {
				return nil, err
			}
			if _, exists := p.scorePatterns[patternName]; exists {
				t := p.peek(0)
				return nil, newParseError(t.Line, t.Column, "duplicate reusable section/pattern name: "+patternName)
			}
			if err := p.expectSymbol('{', "pattern block"); err != nil {
				return nil, err
			}
			patternItems, err := p.parseScoreItems(false)
			if err != nil {
				return nil, err
			}
			patternToken := p.peek(0)
			span, err := computeSpan(patternItems, "pattern span", patternToken.Line, patternToken.Column)
			if err != nil {
				return nil, err
			}
			p.scorePatterns[patternName] = scorePattern{sections: patternItems, span: span}
			continue
		}

		if p.matchIdentifier("use") {
			useToken := p.peek(0)
			call, err := p.parseReusableCall("use", "expected 'x' in use statement")
			if err != nil {
				return nil, err
			}
			expanded, err := p.expandReusableToScore(call, useToken.Line, useToken.Column, "use")
			if err != nil {
				return nil, err
			}
			items = append(items, expanded...)
			continue
		}

		if p.matchIdentifier("play") {
			patternPlayToken := p.peek(0)
			call, err := p.parseReusableCall("pattern play", "expected 'x' in pattern play statement")
			if err != nil {
				return nil, err
			}
			expanded, err := p.expandReusableToScore(call, patternPlayToken.Line, patternPlayToken.Column, "pattern")
			if err != nil {
				return nil, err
			}
			items = append(items, expanded...)
			continue
		}

		t := p.peek(0)
		return nil, newParseError(t.Line, t.Column, "unknown score item: "+t.Text)
	}
	return items, nil
}

func (p *parser) parseScore(file *AuroraFile) error {
	if err := p.expectSymbol('{', "score block"); err != nil {
		return err
	}
	sections, err := p.parseScoreItems(true)
	if err != nil {
		return err
	}
	file.Sections = append(file.Sections, sections...)
	return nil
}

func (p *parser) parseTopLevelSectionTemplate() error {
	section, err := p.parseSection()
	if err != nil {
		return err
	}
	if _, exists := p.scorePatterns[section.Name]; exists {
		t := p.peek(0)
		return newParseError(t.Line, t.Column, "duplicate reusable section/pattern name: "+section.Name)
	}
	sections := []SectionDefinition{section}
	topLevelToken := p.peek(0)
	span, err := computeSpan(sections, "top-level section template span", topLevelToken.Line, topLevelToken.Column)
	if err != nil {
		return err
	}
	p.scorePatterns[section.Name] = scorePattern{sections: sections, span: span}
	return nil
}

func (p *parser) parseAuroraHeader(file *AuroraFile) error {
	body, err := p.parseObjectBody()
	if err != nil {
		return err
	}
	if v, ok := body["version"]; ok {
		file.Version = valueAsString(v)
		return nil
	}
	t := p.peek(0)
	return newParseError(t.Line, t.Column, "aurora header missing version")
}

func (p *parser) parseAssets(file *AuroraFile) error {
	body, err := p.parseObjectBody()
	if err != nil {
		return err
	}
	if v, ok := body["samples_dir"]; ok {
		file.Assets.SamplesDir = valueAsString(v)
	}
	if v, ok := body["samples"]; ok && v.Kind == KindObject {
		if file.Assets.Samples == nil {
			file.Assets.Samples = map[string]string{}
		}
		for name, value := range v.ObjectValues {
			file.Assets.Samples[name] = valueAsString(value)
		}
	}
	return nil
}

func (p *parser) parseOutputs(file *AuroraFile) error {
	body, err := p.parseObjectBody()
	if err != nil {
		return err
	}
	if v, ok := body["stems_dir"]; ok {
		file.Outputs.StemsDir = valueAsString(v)
	}
	if v, ok := body["midi_dir"]; ok {
		file.Outputs.MidiDir = valueAsString(v)
	}
	if v, ok := body["mix_dir"]; ok {
		file.Outputs.MixDir = valueAsString(v)
	}
	if v, ok := body["meta_dir"]; ok {
		file.Outputs.MetaDir = valueAsString(v)
	}
	if v, ok := body["master"]; ok {
		file.Outputs.Master = valueAsString(v)
	}
	if v, ok := body["render_json"]; ok {
		file.Outputs.RenderJSON = valueAsString(v)
	}
	return nil
}

func (p *parser) parseGlobals(file *AuroraFile) error {
	body, err := p.parseObjectBody()
	if err != nil {
		return err
	}
	if v, ok := body["sr"]; ok {
		file.Globals.SR = int(valueAsNumber(v, 48000))
	}
	if v, ok := body["block"]; ok {
		file.Globals.Block = int(valueAsNumber(v, 256))
	}
	if v, ok := body["tempo"]; ok {
		tempo := valueAsNumber(v, 60)
		file.Globals.Tempo = &tempo
	}
	if v, ok := body["tail_policy"]; ok {
		if v.Kind == KindCall && v.StringValue == "fixed" && len(v.ListValues) > 0 {
			tailToken := p.peek(0)
			t, err := valueAsUnitNumber(v.ListValues[0], tailToken.Line, tailToken.Column, "globals.tail_policy.fixed")
			if err != nil {
				return err
			}
			seconds := t.Value
			switch t.Unit {
			case "ms":
				seconds /= 1000.0
			case "min":
				seconds *= 60.0
			case "h":
				seconds *= 3600.0
			}
			file.Globals.TailPolicy.FixedSeconds = seconds
		}
	}
	if v, ok := body["tempo_map"]; ok && v.Kind == KindList {
		for _, pointValue := range v.ListValues {
			tempoToken := p.peek(0)
			pointObj, err := valueAsObject(pointValue, tempoToken.Line, tempoToken.Column, "globals.tempo_map[]")
			if err != nil {
				return err
			}
			point := TempoPoint{BPM: 60}
			if atValue, ok := pointObj["at"]; ok {
				point.At, err = valueAsUnitNumber(atValue, tempoToken.Line, tempoToken.Column, "globals.tempo_map[].at")
				if err != nil {
					return err
				}
			}
			if bpmValue, ok := pointObj["bpm"]; ok {
				point.BPM = valueAsNumber(bpmValue, 60)
			}
			file.Globals.TempoMap = append(file.Globals.TempoMap, point)
		}
	}
	return nil
}

func (p *parser) parse() (AuroraFile, error) {
	file := AuroraFile{Outputs: DefaultOutputsDefinition(), Globals: DefaultGlobalsDefinition()}
	for !p.atEnd() {
		switch {
		case p.matchIdentifier("aurora"):
			if err := p.parseAuroraHeader(&file); err != nil {
				return AuroraFile{}, err
			}
		case p.matchIdentifier("assets"):
			if err := p.parseAssets(&file); err != nil {
				return AuroraFile{}, err
			}
		case p.matchIdentifier("outputs"):
			if err := p.parseOutputs(&file); err != nil {
				return AuroraFile{}, err
			}
		case p.matchIdentifier("globals"):
			if err := p.parseGlobals(&file); err != nil {
				return AuroraFile{}, err
			}
		case p.matchIdentifier("bus"):
			bus, err := p.parseBus()
			if err != nil {
				return AuroraFile{}, err
			}
			file.Buses = append(file.Buses, bus)
		case p.matchIdentifier("patch"):
			patch, err := p.parsePatch()
			if err != nil {
				return AuroraFile{}, err
			}
			file.Patches = append(file.Patches, patch)
		case p.matchIdentifier("section"):
			if err := p.parseTopLevelSectionTemplate(); err != nil {
				return AuroraFile{}, err
			}
		case p.matchIdentifier("score"):
			if err := p.parseScore(&file); err != nil {
				return AuroraFile{}, err
			}
		default:
			t := p.peek(0)
			return AuroraFile{}, newParseError(t.Line, t.Column, "unexpected top-level token: "+t.Text)
		}
	}
	if file.Version == "" {
		t := p.tokens[0]
		return AuroraFile{}, newParseError(t.Line, t.Column, `missing aurora { version: "..." } header`)
	}
	return file, nil
}

// sortedPatternNames is a small test/debugging helper, exposed so tests can
// assert on which reusable patterns a source file declared without reaching
// into parser internals.
func sortedPatternNames(p *parser) []string {
	names := make([]string, 0, len(p.scorePatterns))
	for name := range p.scorePatterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
